// Package expr implements C4, the ExpressionEvaluator: compiling an
// algebra.Expression into a value by walking it against a Tuple. An
// expression error is SPARQL's silent "None" (filters reject it as false,
// OR/COALESCE may still recover a result from the other operand); a
// *Error value distinguishes that case from a fatal storage error, which
// propagates verbatim per §7's error taxonomy.
package expr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// Error is the "silent" ExpressionError class of §7: a Filter sees it as
// false, an And/Or/Coalesce may still mask it, but it is never a fault in
// the enclosing transaction or snapshot.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func exprErrorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// IsExprError reports whether err is the silent expression-level kind
// rather than a fatal storage error.
func IsExprError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// ExistsChecker re-evaluates a sub-pattern for EXISTS/NOT EXISTS, binding
// tuple as the pattern's initial solution. The engine package (C6) supplies
// the implementation; expr only depends on the algebra shape of the
// pattern, never on the engine itself, to avoid an import cycle.
type ExistsChecker interface {
	Exists(pattern algebra.GraphPattern, tuple *algebra.Tuple) (bool, error)
}

// CustomFunction is a user-registered extension function, keyed by its IRI
// (§4.4: "Custom functions registered by IRI").
type CustomFunction func(args []rdf.Term) (rdf.Term, error)

// Evaluator compiles and runs algebra.Expression trees.
type Evaluator struct {
	interner store.Interner
	enc      *store.Encoder
	dec      *store.Decoder
	baseIRI  string
	now      time.Time
	exists   ExistsChecker
	custom   map[string]CustomFunction
	bnodes   map[string]string // per-operation BNode(seed) identity map

	regexCacheSize int
	regexCache     map[string]*regexp.Regexp
	regexOrder     []string // insertion order, for FIFO eviction once the cache is full
}

// New returns an Evaluator. now is captured once per query (§4.4's Now()
// must return the same instant for every call within one evaluation).
// exists may be nil if the expression tree contains no EXISTS/NOT EXISTS.
func New(interner store.Interner, baseIRI string, now time.Time, exists ExistsChecker, custom map[string]CustomFunction) *Evaluator {
	return &Evaluator{
		interner: interner,
		enc:      store.NewEncoder(),
		dec:      store.NewDecoder(),
		baseIRI:  baseIRI,
		now:      now,
		exists:   exists,
		custom:   custom,
		bnodes:   make(map[string]string),
	}
}

// SetRegexCacheSize bounds how many distinct compiled (pattern, flags)
// REGEX/REPLACE regexes this Evaluator keeps around across Eval calls,
// generalizing spec 4.4's "compile once at plan time" rule (static
// patterns) to the dynamic-pattern case: a size of 0, the default, disables
// the cache and every call compiles fresh.
func (e *Evaluator) SetRegexCacheSize(n int) {
	e.regexCacheSize = n
	e.regexCache = nil
	e.regexOrder = nil
}

// compileRegexCached compiles key (the flag-prefixed pattern) or returns the
// cached *regexp.Regexp, evicting the oldest entry FIFO once the cache is
// full.
func (e *Evaluator) compileRegexCached(key string) (*regexp.Regexp, error) {
	if e.regexCacheSize <= 0 {
		return regexp.Compile(key)
	}
	if e.regexCache == nil {
		e.regexCache = make(map[string]*regexp.Regexp)
	}
	if re, ok := e.regexCache[key]; ok {
		return re, nil
	}
	re, err := regexp.Compile(key)
	if err != nil {
		return nil, err
	}
	if len(e.regexOrder) >= e.regexCacheSize {
		oldest := e.regexOrder[0]
		e.regexOrder = e.regexOrder[1:]
		delete(e.regexCache, oldest)
	}
	e.regexCache[key] = re
	e.regexOrder = append(e.regexOrder, key)
	return re, nil
}

// Eval compiles expr against tuple, returning the bound EncodedTerm or an
// *Error on a SPARQL-silent failure. Any other error is fatal (a storage
// fault surfaced while decoding an operand).
func (e *Evaluator) Eval(node algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	switch n := node.(type) {
	case *algebra.Var:
		v, ok := tuple.Get(n.Slot)
		if !ok {
			return store.EncodedTerm{}, exprErrorf("unbound variable in slot %d", n.Slot)
		}
		return v, nil
	case *algebra.Const:
		return n.Term, nil
	case *algebra.And:
		return e.evalAnd(n, tuple)
	case *algebra.Or:
		return e.evalOr(n, tuple)
	case *algebra.Not:
		return e.evalNot(n, tuple)
	case *algebra.Bound:
		_, ok := tuple.Get(n.Slot)
		return e.encodeBool(ok)
	case *algebra.If:
		return e.evalIf(n, tuple)
	case *algebra.Coalesce:
		return e.evalCoalesce(n, tuple)
	case *algebra.SameTerm:
		return e.evalSameTerm(n, tuple)
	case *algebra.Compare:
		return e.evalCompare(n, tuple)
	case *algebra.Arithmetic:
		return e.evalArithmetic(n, tuple)
	case *algebra.UnaryMinus:
		return e.evalUnaryMinus(n, tuple)
	case *algebra.UnaryPlus:
		return e.evalUnaryPlus(n, tuple)
	case *algebra.Exists:
		return e.evalExists(n.Pattern, tuple, false)
	case *algebra.NotExists:
		return e.evalExists(n.Pattern, tuple, true)
	case *algebra.FunctionCall:
		return e.evalFunctionCall(n, tuple)
	case *algebra.Cast:
		return e.evalCast(n, tuple)
	default:
		return store.EncodedTerm{}, fmt.Errorf("expr: unhandled expression node %T", node)
	}
}

// EBV returns an expression's effective boolean value per §4.4: true iff
// boolean-true, a non-empty xsd:string, or a non-NaN non-zero numeric.
func (e *Evaluator) EBV(node algebra.Expression, tuple *algebra.Tuple) (bool, error) {
	enc, err := e.Eval(node, tuple)
	if err != nil {
		return false, err
	}
	return e.ebvOf(enc)
}

func (e *Evaluator) ebvOf(enc store.EncodedTerm) (bool, error) {
	term, err := e.decode(enc)
	if err != nil {
		return false, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, exprErrorf("cannot compute EBV of non-literal term %v", term)
	}
	if n, isNum, err := e.literalNumeric(lit); err == nil && isNum {
		return !n.isZero() && !n.isNaN(), nil
	}
	dt := ""
	if lit.Datatype != nil {
		dt = lit.Datatype.IRI
	}
	switch dt {
	case "", rdf.XSDString.IRI:
		return lit.Value != "", nil
	case rdf.XSDBoolean.IRI:
		return lit.Value == "true" || lit.Value == "1", nil
	default:
		return false, exprErrorf("cannot compute EBV of literal with datatype %s", dt)
	}
}

func (e *Evaluator) evalAnd(n *algebra.And, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	left, leftErr := e.EBV(n.Left, tuple)
	if leftErr == nil && !left {
		return e.encodeBool(false)
	}
	right, rightErr := e.EBV(n.Right, tuple)
	if rightErr == nil && !right {
		return e.encodeBool(false)
	}
	if leftErr != nil {
		return store.EncodedTerm{}, leftErr
	}
	if rightErr != nil {
		return store.EncodedTerm{}, rightErr
	}
	return e.encodeBool(left && right)
}

func (e *Evaluator) evalOr(n *algebra.Or, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	left, leftErr := e.EBV(n.Left, tuple)
	if leftErr == nil && left {
		return e.encodeBool(true)
	}
	right, rightErr := e.EBV(n.Right, tuple)
	if rightErr == nil && right {
		return e.encodeBool(true)
	}
	if leftErr != nil {
		return store.EncodedTerm{}, leftErr
	}
	if rightErr != nil {
		return store.EncodedTerm{}, rightErr
	}
	return e.encodeBool(left || right)
}

func (e *Evaluator) evalNot(n *algebra.Not, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	v, err := e.EBV(n.Operand, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeBool(!v)
}

func (e *Evaluator) evalIf(n *algebra.If, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	cond, err := e.EBV(n.Cond, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if cond {
		return e.Eval(n.Then, tuple)
	}
	return e.Eval(n.Else, tuple)
}

func (e *Evaluator) evalCoalesce(n *algebra.Coalesce, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	var lastErr error = exprErrorf("COALESCE of zero arguments")
	for _, arg := range n.Args {
		v, err := e.Eval(arg, tuple)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return store.EncodedTerm{}, lastErr
}

func (e *Evaluator) evalSameTerm(n *algebra.SameTerm, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	left, err := e.Eval(n.Left, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	right, err := e.Eval(n.Right, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	lt, err := e.decode(left)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	rt, err := e.decode(right)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeBool(lt.Equals(rt))
}

func (e *Evaluator) evalExists(pattern algebra.GraphPattern, tuple *algebra.Tuple, negate bool) (store.EncodedTerm, error) {
	if e.exists == nil {
		return store.EncodedTerm{}, exprErrorf("EXISTS/NOT EXISTS requires a pattern evaluator")
	}
	found, err := e.exists.Exists(pattern, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if negate {
		found = !found
	}
	return e.encodeBool(found)
}

func (e *Evaluator) decode(enc store.EncodedTerm) (rdf.Term, error) {
	return e.dec.DecodeTerm(e.interner, enc)
}

func (e *Evaluator) encode(term rdf.Term) (store.EncodedTerm, error) {
	return e.enc.EncodeTerm(e.interner, term)
}

func (e *Evaluator) encodeBool(v bool) (store.EncodedTerm, error) {
	return e.encode(rdf.NewBooleanLiteral(v))
}

func (e *Evaluator) stringOf(enc store.EncodedTerm) (string, error) {
	term, err := e.decode(enc)
	if err != nil {
		return "", err
	}
	return stringValue(term)
}

func stringValue(term rdf.Term) (string, error) {
	switch t := term.(type) {
	case *rdf.Literal:
		return t.Value, nil
	case *rdf.NamedNode:
		return t.IRI, nil
	default:
		return "", exprErrorf("cannot extract a string from term of type %T", term)
	}
}

// langCompatible reports whether the two string operands are "argument
// compatible" per §4.4 (same language, or the second has none).
func langCompatible(a, b *rdf.Literal) bool {
	if a.Language == "" && b.Language == "" {
		return true
	}
	if b.Language == "" {
		return true
	}
	return strings.EqualFold(a.Language, b.Language)
}
