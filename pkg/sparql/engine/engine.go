// Package engine implements C6, the GraphPatternEvaluator: compiling an
// algebra.GraphPattern into a demand-driven Iterator over algebra.Tuple,
// generalizing the teacher's nested-loop-only pkg/sparql/executor onto the
// operator-by-operator contract of spec section 4.6 (hash joins, Lateral,
// OrderBy's total term order, Group/Aggregate, Service).
package engine

import (
	"fmt"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/expr"
	"github.com/aleksaelezovic/trigo/pkg/sparql/path"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// ErrCancelled is returned by Next (via Err) once a CancelFunc reports true;
// cancellation is cooperative, checked once per pull on every iterator this
// package builds.
var ErrCancelled = fmt.Errorf("engine: query cancelled")

// CancelFunc reports whether the owning query has been asked to stop. A nil
// CancelFunc means the query can never be cancelled this way; the stats
// package (C8) is expected to supply a real one backed by an atomic flag.
type CancelFunc func() bool

// Iterator is the demand-driven contract every compiled node satisfies:
// Next advances to the next tuple (or reports end-of-stream/error), Tuple
// returns the current one, Err distinguishes a clean end from a fatal fault
// (mirroring bufio.Scanner's convention, since algebra.Tuple itself carries
// no error channel), and Close releases any underlying storage iterator.
type Iterator interface {
	Next() bool
	Tuple() *algebra.Tuple
	Err() error
	Close() error
}

// ServiceHandler executes a federated SERVICE sub-pattern against the
// endpoint named by iri, yielding solutions compatible with input.
type ServiceHandler func(iri string, inner algebra.GraphPattern, input *algebra.Tuple) (Iterator, error)

// Engine compiles and runs algebra.GraphPattern trees against one dataset
// snapshot. One Engine is built per query evaluation, the way expr.Evaluator
// captures Now() once; Engine additionally owns the expr.Evaluator so EXISTS
// can call back into Compile without an import cycle (expr depends only on
// the ExistsChecker interface shape).
type Engine struct {
	view     *dataset.View
	interner store.Interner
	enc      *store.Encoder
	dec      *store.Decoder
	pathEval *path.Evaluator
	expr     *expr.Evaluator
	services   map[string]ServiceHandler
	cancel     CancelFunc
	customAggs map[string]CustomAggregatorFactory
	instrument InstrumentFunc
	memoryBudget int
}

// ErrMemoryBudgetExceeded is returned when a materializing operator (ORDER
// BY, GROUP BY, DISTINCT's seen-tuple set) would grow past the configured
// row budget, per spec section 5's memory-discipline rule: "the operator
// MUST fail rather than thrash."
var ErrMemoryBudgetExceeded = fmt.Errorf("engine: memory budget exceeded")

// SetMemoryBudget bounds the number of tuples any single materializing
// operator may hold at once. 0, the default, means unbounded. This counts
// rows, not bytes -- an implementation-defined approximation of a byte
// bound; internal/config.EngineConfig's MemoryBudgetRows supplies the row
// count from TOML.
func (e *Engine) SetMemoryBudget(maxRows int) { e.memoryBudget = maxRows }

// SetRegexCacheSize forwards to the embedded expr.Evaluator, bounding how
// many distinct compiled REGEX/REPLACE patterns it keeps across calls
// within this Engine's lifetime (internal/config.EngineConfig's
// regex_cache_size knob).
func (e *Engine) SetRegexCacheSize(n int) { e.expr.SetRegexCacheSize(n) }

// InstrumentFunc wraps one compiled node's Iterator, labeled by its algebra
// node kind (spec 4.8: "the evaluator wraps each node's iterator in a
// StatsIterator"); the stats package (C8) supplies one that attaches a
// counting/timing decorator without engine needing to import stats (engine
// stays the dependency-free core, mirroring how CancelFunc avoids the same
// cycle for cancellation).
type InstrumentFunc func(name string, it Iterator) Iterator

// SetInstrument installs f as the per-node wrapping hook for every
// subsequent Compile call; a nil f (the default) compiles uninstrumented.
func (e *Engine) SetInstrument(f InstrumentFunc) { e.instrument = f }

// New returns an Engine. now is the instant NOW() resolves to for the whole
// query (spec 4.4); cancel may be nil. services maps a SERVICE endpoint IRI
// to its handler; a nil map means SERVICE always errors (or is silenced by
// the Silent flag).
func New(view *dataset.View, interner store.Interner, baseIRI string, now time.Time, custom map[string]expr.CustomFunction, services map[string]ServiceHandler, cancel CancelFunc) *Engine {
	e := &Engine{
		view:     view,
		interner: interner,
		enc:      store.NewEncoder(),
		dec:      store.NewDecoder(),
		pathEval: path.New(view, interner),
		services: services,
		cancel:   cancel,
	}
	e.expr = expr.New(interner, baseIRI, now, e, custom)
	return e
}

// Exists implements expr.ExistsChecker: re-evaluate pattern with tuple as
// the initial binding, reporting whether it yields at least one solution.
func (e *Engine) Exists(pattern algebra.GraphPattern, tuple *algebra.Tuple) (bool, error) {
	it, err := e.Compile(pattern, tuple)
	if err != nil {
		return false, err
	}
	defer it.Close()
	if it.Next() {
		return true, nil
	}
	return false, it.Err()
}

// Substitute builds the initial tuple for a SELECT/ASK/CONSTRUCT/DESCRIBE
// entry point from a {variable name -> term} map (spec 4.6's closing
// paragraph), resolving each name to a slot via lookup. Unknown variable
// names are an error; nothing is written to the store on failure.
func (e *Engine) Substitute(bindings map[string]rdf.Term, nameToSlot map[string]algebra.Slot) (*algebra.Tuple, error) {
	tuple := algebra.NewTuple()
	for name, term := range bindings {
		slot, ok := nameToSlot[name]
		if !ok {
			return nil, fmt.Errorf("engine: substitution references unknown variable %q", name)
		}
		enc, err := e.enc.EncodeTerm(e.interner, term)
		if err != nil {
			return nil, err
		}
		tuple = tuple.With(slot, enc)
	}
	return tuple, nil
}

func (e *Engine) decode(enc store.EncodedTerm) (rdf.Term, error) {
	return e.dec.DecodeTerm(e.interner, enc)
}

func (e *Engine) encode(term rdf.Term) (store.EncodedTerm, error) {
	return e.enc.EncodeTerm(e.interner, term)
}

// Compile turns pattern into a running Iterator, with input supplying the
// bindings already in scope (the empty tuple for a top-level query, or the
// left tuple for Lateral's dependent right side).
func (e *Engine) Compile(pattern algebra.GraphPattern, input *algebra.Tuple) (Iterator, error) {
	it, err := e.compile(pattern, input)
	if err != nil {
		return nil, err
	}
	if e.cancel != nil {
		return &cancelIterator{inner: it, cancel: e.cancel}, nil
	}
	return it, nil
}

func (e *Engine) compile(pattern algebra.GraphPattern, input *algebra.Tuple) (Iterator, error) {
	name, it, err := e.compileNode(pattern, input)
	if err != nil {
		return nil, err
	}
	if e.instrument != nil {
		it = e.instrument(name, it)
	}
	return it, nil
}

// compileNode is the dispatch table proper; it returns the node's label
// alongside its compiled Iterator so SetInstrument's hook (and, in turn,
// stats.Describe's tree) can name each wrapped node without engine itself
// knowing anything about EXPLAIN. The recursion order here -- children
// compiled (and thus wrapped) before the parent's own iterator is built --
// is what stats.Recorder relies on to match compiled nodes back to a
// pre-built Node tree.
func (e *Engine) compileNode(pattern algebra.GraphPattern, input *algebra.Tuple) (string, Iterator, error) {
	switch p := pattern.(type) {
	case *algebra.Values:
		return "Values", e.compileValues(p, input), nil
	case *algebra.QuadPattern:
		it, err := e.compileQuadPattern(p, input)
		return "QuadPattern", it, err
	case *algebra.PathScan:
		it, err := e.compilePathScan(p, input)
		return "PathScan", it, err
	case *algebra.Join:
		it, err := e.compileJoin(p, input)
		return "Join", it, err
	case *algebra.LeftJoin:
		it, err := e.compileLeftJoin(p, input)
		return "LeftJoin", it, err
	case *algebra.Minus:
		it, err := e.compileMinus(p, input)
		return "Minus", it, err
	case *algebra.Union:
		it, err := e.compileUnion(p, input)
		return "Union", it, err
	case *algebra.Lateral:
		it, err := e.compileLateral(p, input)
		return "Lateral", it, err
	case *algebra.ForLoopLeftJoin:
		it, err := e.compileForLoopLeftJoin(p, input)
		return "ForLoopLeftJoin", it, err
	case *algebra.Filter:
		it, err := e.compileFilter(p, input)
		return "Filter", it, err
	case *algebra.Extend:
		it, err := e.compileExtend(p, input)
		return "Extend", it, err
	case *algebra.OrderBy:
		it, err := e.compileOrderBy(p, input)
		return "OrderBy", it, err
	case *algebra.Distinct:
		it, err := e.compileDistinct(p, input)
		return "Distinct", it, err
	case *algebra.Reduced:
		it, err := e.compileReduced(p, input)
		return "Reduced", it, err
	case *algebra.Slice:
		it, err := e.compileSlice(p, input)
		return "Slice", it, err
	case *algebra.Project:
		it, err := e.compileProject(p, input)
		return "Project", it, err
	case *algebra.Group:
		it, err := e.compileGroup(p, input)
		return "Group", it, err
	case *algebra.Service:
		it, err := e.compileService(p, input)
		return "Service", it, err
	default:
		return "", nil, fmt.Errorf("engine: unknown graph pattern node %T", pattern)
	}
}

// sliceIterator is the simplest possible Iterator, yielding the tuples of a
// pre-built slice in order; OrderBy, Group and Values all reduce to this
// once their own materialization step is done (Distinct streams through its
// own distinctIterator instead).
type sliceIterator struct {
	tuples []*algebra.Tuple
	pos    int
	err    error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.pos >= len(it.tuples) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Tuple() *algebra.Tuple { return it.tuples[it.pos-1] }
func (it *sliceIterator) Err() error            { return it.err }
func (it *sliceIterator) Close() error          { return nil }

// errIterator immediately fails with err; used to surface a build-side
// error before any join tuple is yielded (spec 4.6: "errors from the build
// side are buffered and emitted before yielding any join tuple").
type errIterator struct{ err error }

func (it *errIterator) Next() bool            { return false }
func (it *errIterator) Tuple() *algebra.Tuple { return nil }
func (it *errIterator) Err() error            { return it.err }
func (it *errIterator) Close() error          { return nil }

// cancelIterator wraps any Iterator with a cooperative cancellation probe,
// checked once per Next call (spec 5: "guaranteed latency is one per-next
// probe on every scan").
type cancelIterator struct {
	inner  Iterator
	cancel CancelFunc
	err    error
}

func (it *cancelIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.cancel() {
		it.err = ErrCancelled
		return false
	}
	return it.inner.Next()
}

func (it *cancelIterator) Tuple() *algebra.Tuple { return it.inner.Tuple() }
func (it *cancelIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Err()
}
func (it *cancelIterator) Close() error { return it.inner.Close() }

// drain fully materializes it into a slice, stopping at the first error.
func drain(it Iterator) ([]*algebra.Tuple, error) {
	defer it.Close()
	var out []*algebra.Tuple
	for it.Next() {
		out = append(out, it.Tuple())
	}
	return out, it.Err()
}

// drainBounded is drain plus e's memory budget: ORDER BY and GROUP BY both
// fully materialize their child before producing a single output tuple, so
// this is where the row-count budget is enforced for them.
func (e *Engine) drainBounded(it Iterator) ([]*algebra.Tuple, error) {
	defer it.Close()
	var out []*algebra.Tuple
	for it.Next() {
		if e.memoryBudget > 0 && len(out) >= e.memoryBudget {
			return nil, ErrMemoryBudgetExceeded
		}
		out = append(out, it.Tuple())
	}
	return out, it.Err()
}
