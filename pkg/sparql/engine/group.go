package engine

import (
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// CustomAggregator is a user-registered accumulator for AggregateCustom,
// mirroring expr.CustomFunction's registration-by-name model.
type CustomAggregator interface {
	Add(term rdf.Term, present bool)
	State() (rdf.Term, bool)
}

// CustomAggregatorFactory builds a fresh CustomAggregator per bucket, since
// accumulator state must not leak across groups.
type CustomAggregatorFactory func() CustomAggregator

// SetCustomAggregators registers the CustomAggregatorFactory table consulted
// by AggregateCustom; nil (the default) makes every custom aggregate error.
func (e *Engine) SetCustomAggregators(factories map[string]CustomAggregatorFactory) {
	e.customAggs = factories
}

// groupBucket holds one group-by bucket's key tuple and parallel
// accumulator set (one accumulator per g.Aggregates entry).
type groupBucket struct {
	key  *algebra.Tuple
	accs []accumulator
}

// compileGroup implements spec 4.6: drain Child, bucket by Keys, run one
// accumulator per Aggregate, and always emit at least one tuple when Keys
// is empty (even from an empty input).
func (e *Engine) compileGroup(g *algebra.Group, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(g.Child, input)
	if err != nil {
		return nil, err
	}
	rows, drainErr := e.drainBounded(child)
	if drainErr != nil {
		return &errIterator{err: drainErr}, nil
	}

	order := []string{}
	buckets := map[string]*groupBucket{}
	newBucket := func(keyTuple *algebra.Tuple) *groupBucket {
		accs := make([]accumulator, len(g.Aggregates))
		for i, agg := range g.Aggregates {
			accs[i] = e.newAccumulator(agg)
		}
		return &groupBucket{key: keyTuple, accs: accs}
	}

	if len(g.Keys) == 0 {
		// Zero keys: always exactly one bucket, even over zero input rows.
		b := newBucket(algebra.NewTuple())
		for _, row := range rows {
			for i, agg := range g.Aggregates {
				e.feedAccumulator(b.accs[i], agg, row)
			}
		}
		return e.emitGroupResult(g, []*groupBucket{b})
	}

	for _, row := range rows {
		keyTuple := row.Project(g.Keys)
		k := tupleKey(keyTuple)
		b, ok := buckets[k]
		if !ok {
			if e.memoryBudget > 0 && len(buckets) >= e.memoryBudget {
				return &errIterator{err: ErrMemoryBudgetExceeded}, nil
			}
			b = newBucket(keyTuple)
			buckets[k] = b
			order = append(order, k)
		}
		for i, agg := range g.Aggregates {
			e.feedAccumulator(b.accs[i], agg, row)
		}
	}
	ordered := make([]*groupBucket, len(order))
	for i, k := range order {
		ordered[i] = buckets[k]
	}
	return e.emitGroupResult(g, ordered)
}

func (e *Engine) feedAccumulator(acc accumulator, agg algebra.Aggregate, row *algebra.Tuple) {
	if agg.Kind == algebra.AggregateCount && agg.Expr == nil {
		acc.add(nil, true) // COUNT(*): count the tuple regardless of value
		return
	}
	enc, err := e.expr.Eval(agg.Expr, row)
	if err != nil {
		acc.add(nil, false)
		return
	}
	acc.add(&enc, true)
}

func (e *Engine) emitGroupResult(g *algebra.Group, buckets []*groupBucket) (Iterator, error) {
	out := make([]*algebra.Tuple, 0, len(buckets))
	for _, b := range buckets {
		t := b.key
		for i, agg := range g.Aggregates {
			if enc, ok := b.accs[i].state(); ok {
				t = t.With(agg.Output, enc)
			}
		}
		out = append(out, t)
	}
	return &sliceIterator{tuples: out}, nil
}

// accumulator is the add/state contract spec 4.6 assigns every aggregate
// kind. present distinguishes a bound value from SPARQL's None (an
// unevaluable expression), since add(None) still counts for COUNT.
type accumulator interface {
	add(enc *store.EncodedTerm, present bool)
	state() (store.EncodedTerm, bool)
}

func (e *Engine) newAccumulator(agg algebra.Aggregate) accumulator {
	var base accumulator
	switch agg.Kind {
	case algebra.AggregateCount:
		base = &countAcc{e: e}
	case algebra.AggregateSum:
		base = &sumAcc{e: e}
	case algebra.AggregateAvg:
		base = &avgAcc{e: e}
	case algebra.AggregateMin:
		base = &minMaxAcc{e: e, wantMax: false}
	case algebra.AggregateMax:
		base = &minMaxAcc{e: e, wantMax: true}
	case algebra.AggregateSample:
		base = &sampleAcc{}
	case algebra.AggregateGroupConcat:
		base = &groupConcatAcc{e: e, sep: agg.Separator}
	case algebra.AggregateCustom:
		base = &customAcc{e: e, name: agg.CustomName}
	default:
		base = &countAcc{e: e}
	}
	if agg.Distinct {
		return &distinctWrap{inner: base, seen: map[store.EncodedTerm]bool{}}
	}
	return base
}

// distinctWrap skips values already seen by an encoded-term identity check
// before delegating to inner (spec 4.6: "a Deduplicate adapter skips
// duplicates before delegation").
type distinctWrap struct {
	inner accumulator
	seen  map[store.EncodedTerm]bool
}

func (d *distinctWrap) add(enc *store.EncodedTerm, present bool) {
	if present && enc != nil {
		if d.seen[*enc] {
			return
		}
		d.seen[*enc] = true
	}
	d.inner.add(enc, present)
}
func (d *distinctWrap) state() (store.EncodedTerm, bool) { return d.inner.state() }

type countAcc struct {
	e *Engine
	n int64
}

func (a *countAcc) add(enc *store.EncodedTerm, present bool) {
	if present {
		a.n++
	}
}
func (a *countAcc) state() (store.EncodedTerm, bool) {
	enc, err := a.e.encode(rdf.NewIntegerLiteral(a.n))
	if err != nil {
		return store.EncodedTerm{}, false
	}
	return enc, true
}

type sumAcc struct {
	e     *Engine
	sum   store.EncodedTerm
	any   bool
	ok    bool
}

func (a *sumAcc) add(enc *store.EncodedTerm, present bool) {
	if !present || enc == nil {
		return
	}
	if !a.any {
		a.sum = *enc
		a.any = true
		a.ok = true
		return
	}
	if !a.ok {
		return
	}
	node := &algebra.Arithmetic{Op: algebra.ArithAdd, Left: &algebra.Const{Term: a.sum}, Right: &algebra.Const{Term: *enc}}
	result, err := a.e.expr.Eval(node, algebra.NewTuple())
	if err != nil {
		a.ok = false
		return
	}
	a.sum = result
}

func (a *sumAcc) state() (store.EncodedTerm, bool) {
	if !a.any {
		enc, _ := a.e.encode(rdf.NewIntegerLiteral(0))
		return enc, true
	}
	if !a.ok {
		return store.EncodedTerm{}, false
	}
	return a.sum, true
}

// avgAcc computes sum/count through C4's own Arithmetic node (Decimal when
// the inputs are integers, per the numeric promotion lattice), rather than
// reimplementing numeric promotion here.
type avgAcc struct {
	e     *Engine
	sum   store.EncodedTerm
	count int64
	any   bool
	ok    bool
}

func (a *avgAcc) add(enc *store.EncodedTerm, present bool) {
	if !present || enc == nil {
		return
	}
	a.count++
	if !a.any {
		a.sum = *enc
		a.any = true
		a.ok = true
		return
	}
	if !a.ok {
		return
	}
	node := &algebra.Arithmetic{Op: algebra.ArithAdd, Left: &algebra.Const{Term: a.sum}, Right: &algebra.Const{Term: *enc}}
	result, err := a.e.expr.Eval(node, algebra.NewTuple())
	if err != nil {
		a.ok = false
		return
	}
	a.sum = result
}

func (a *avgAcc) state() (store.EncodedTerm, bool) {
	if a.count == 0 {
		enc, _ := a.e.encode(rdf.NewIntegerLiteral(0))
		return enc, true
	}
	if !a.ok {
		return store.EncodedTerm{}, false
	}
	countEnc, err := a.e.encode(rdf.NewIntegerLiteral(a.count))
	if err != nil {
		return store.EncodedTerm{}, false
	}
	node := &algebra.Arithmetic{Op: algebra.ArithDivide, Left: &algebra.Const{Term: a.sum}, Right: &algebra.Const{Term: countEnc}}
	result, err := a.e.expr.Eval(node, algebra.NewTuple())
	if err != nil {
		return store.EncodedTerm{}, false
	}
	return result, true
}

// minMaxAcc compares candidates via the SPARQL total order, skipping None
// inputs.
type minMaxAcc struct {
	e       *Engine
	best    store.EncodedTerm
	any     bool
	wantMax bool
}

func (a *minMaxAcc) add(enc *store.EncodedTerm, present bool) {
	if !present || enc == nil {
		return
	}
	if !a.any {
		a.best = *enc
		a.any = true
		return
	}
	bestTerm, _ := a.e.decode(a.best)
	candTerm, _ := a.e.decode(*enc)
	cmp := compareTotalOrder(candTerm, bestTerm)
	if (a.wantMax && cmp > 0) || (!a.wantMax && cmp < 0) {
		a.best = *enc
	}
}

func (a *minMaxAcc) state() (store.EncodedTerm, bool) { return a.best, a.any }

type sampleAcc struct {
	val store.EncodedTerm
	any bool
}

func (a *sampleAcc) add(enc *store.EncodedTerm, present bool) {
	if a.any || !present || enc == nil {
		return
	}
	a.val = *enc
	a.any = true
}
func (a *sampleAcc) state() (store.EncodedTerm, bool) { return a.val, a.any }

// groupConcatAcc concatenates the string forms of inputs with sep, keeping
// a common language tag only while every input agrees (spec 4.6).
type groupConcatAcc struct {
	e        *Engine
	sep      string
	parts    []string
	lang     string
	haveLang bool
	langOK   bool
	any      bool
}

func (a *groupConcatAcc) add(enc *store.EncodedTerm, present bool) {
	if !present || enc == nil {
		return
	}
	term, err := a.e.decode(*enc)
	if err != nil {
		return
	}
	a.any = true
	s, lang := stringAndLang(term)
	a.parts = append(a.parts, s)
	if !a.haveLang {
		a.lang = lang
		a.haveLang = true
		a.langOK = true
	} else if a.lang != lang {
		a.langOK = false
	}
}

func (a *groupConcatAcc) state() (store.EncodedTerm, bool) {
	if !a.any {
		enc, _ := a.e.encode(rdf.NewLiteral(""))
		return enc, true
	}
	joined := strings.Join(a.parts, a.sep)
	var lit *rdf.Literal
	if a.langOK && a.lang != "" {
		lit = rdf.NewLiteralWithLanguage(joined, a.lang)
	} else {
		lit = rdf.NewLiteral(joined)
	}
	enc, err := a.e.encode(lit)
	if err != nil {
		return store.EncodedTerm{}, false
	}
	return enc, true
}

func stringAndLang(t rdf.Term) (string, string) {
	switch v := t.(type) {
	case *rdf.Literal:
		return v.Value, v.Language
	case *rdf.NamedNode:
		return v.IRI, ""
	default:
		return t.String(), ""
	}
}

// customAcc adapts a registered CustomAggregator to the encoded-term
// accumulator contract, decoding/encoding at the boundary.
type customAcc struct {
	e    *Engine
	name string
	inst CustomAggregator
	err  bool
}

func (a *customAcc) lazyInit() bool {
	if a.inst != nil {
		return true
	}
	if a.e.customAggs == nil {
		a.err = true
		return false
	}
	factory, ok := a.e.customAggs[a.name]
	if !ok {
		a.err = true
		return false
	}
	a.inst = factory()
	return true
}

func (a *customAcc) add(enc *store.EncodedTerm, present bool) {
	if !a.lazyInit() {
		return
	}
	if !present || enc == nil {
		a.inst.Add(nil, false)
		return
	}
	term, err := a.e.decode(*enc)
	if err != nil {
		return
	}
	a.inst.Add(term, true)
}

func (a *customAcc) state() (store.EncodedTerm, bool) {
	if a.err || a.inst == nil {
		return store.EncodedTerm{}, false
	}
	term, ok := a.inst.State()
	if !ok {
		return store.EncodedTerm{}, false
	}
	enc, err := a.e.encode(term)
	if err != nil {
		return store.EncodedTerm{}, false
	}
	return enc, true
}
