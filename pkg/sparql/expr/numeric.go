package expr

import (
	"math"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// numKind orders the promotion lattice of §4.4: Integer -> Decimal ->
// Float -> Double. An arithmetic or comparison result's kind is the max of
// its operands' kinds.
type numKind int

const (
	kindInteger numKind = iota
	kindDecimal
	kindFloat
	kindDouble
)

// numeric is the decoded value of a numeric literal, kept as an exact
// int64 when possible and a float64 always (the Open Question on
// xsd:decimal precision is resolved in DESIGN.md: decimal is carried as a
// float64, same as Float/Double, trading arbitrary precision for a single
// Go representation across the whole lattice).
type numeric struct {
	kind numKind
	ival int64
	fval float64
}

func (n numeric) isZero() bool {
	if n.kind == kindInteger {
		return n.ival == 0
	}
	return n.fval == 0
}

func (n numeric) isNaN() bool {
	return n.kind != kindInteger && math.IsNaN(n.fval)
}

func (n numeric) float() float64 {
	if n.kind == kindInteger {
		return float64(n.ival)
	}
	return n.fval
}

func promote(a, b numeric) numKind {
	k := a.kind
	if b.kind > k {
		k = b.kind
	}
	return k
}

// literalNumeric classifies lit's datatype into the numeric lattice,
// mirroring the teacher's extractNumeric but preserving which rung of the
// lattice the value occupies so arithmetic results pick the right output
// datatype instead of always collapsing to double.
func (e *Evaluator) literalNumeric(lit *rdf.Literal) (numeric, bool, error) {
	if lit.Datatype == nil {
		return numeric{}, false, nil
	}
	switch lit.Datatype.IRI {
	case rdf.XSDInteger.IRI:
		var iv int64
		if _, err := parseInt(lit.Value, &iv); err != nil {
			return numeric{}, false, exprErrorf("invalid xsd:integer lexical form %q", lit.Value)
		}
		return numeric{kind: kindInteger, ival: iv}, true, nil
	case rdf.XSDDecimal.IRI:
		fv, err := parseFloat(lit.Value)
		if err != nil {
			return numeric{}, false, exprErrorf("invalid xsd:decimal lexical form %q", lit.Value)
		}
		return numeric{kind: kindDecimal, fval: fv}, true, nil
	case rdf.XSDFloat.IRI:
		fv, err := parseFloat(lit.Value)
		if err != nil {
			return numeric{}, false, exprErrorf("invalid xsd:float lexical form %q", lit.Value)
		}
		return numeric{kind: kindFloat, fval: fv}, true, nil
	case rdf.XSDDouble.IRI:
		fv, err := parseFloat(lit.Value)
		if err != nil {
			return numeric{}, false, exprErrorf("invalid xsd:double lexical form %q", lit.Value)
		}
		return numeric{kind: kindDouble, fval: fv}, true, nil
	default:
		return numeric{}, false, nil
	}
}

func (e *Evaluator) numericOf(enc store.EncodedTerm) (numeric, error) {
	term, err := e.decode(enc)
	if err != nil {
		return numeric{}, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return numeric{}, exprErrorf("expected a numeric literal, got %T", term)
	}
	n, isNum, err := e.literalNumeric(lit)
	if err != nil {
		return numeric{}, err
	}
	if !isNum {
		return numeric{}, exprErrorf("literal with datatype %v is not numeric", lit.Datatype)
	}
	return n, nil
}

func (e *Evaluator) encodeNumeric(n numeric) (store.EncodedTerm, error) {
	var lit *rdf.Literal
	switch n.kind {
	case kindInteger:
		lit = rdf.NewIntegerLiteral(n.ival)
	case kindDecimal:
		lit = rdf.NewDecimalLiteral(n.fval)
	case kindFloat:
		lit = rdf.NewFloatLiteral(float32(n.fval))
	default:
		lit = rdf.NewDoubleLiteral(n.fval)
	}
	return e.encode(lit)
}

func (e *Evaluator) evalArithmetic(n *algebra.Arithmetic, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	leftEnc, err := e.Eval(n.Left, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	rightEnc, err := e.Eval(n.Right, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	left, err := e.numericOf(leftEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	right, err := e.numericOf(rightEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}

	kind := promote(left, right)
	if kind == kindInteger {
		var result int64
		switch n.Op {
		case algebra.ArithAdd:
			result = left.ival + right.ival
		case algebra.ArithSubtract:
			result = left.ival - right.ival
		case algebra.ArithMultiply:
			result = left.ival * right.ival
		case algebra.ArithDivide:
			// Division always promotes to decimal per XPath/SPARQL numeric
			// rules, even for two integers.
			if right.ival == 0 {
				return store.EncodedTerm{}, exprErrorf("division by zero")
			}
			return e.encodeNumeric(numeric{kind: kindDecimal, fval: float64(left.ival) / float64(right.ival)})
		}
		return e.encodeNumeric(numeric{kind: kindInteger, ival: result})
	}

	lf, rf := left.float(), right.float()
	var result float64
	switch n.Op {
	case algebra.ArithAdd:
		result = lf + rf
	case algebra.ArithSubtract:
		result = lf - rf
	case algebra.ArithMultiply:
		result = lf * rf
	case algebra.ArithDivide:
		if rf == 0 {
			if kind == kindDecimal {
				return store.EncodedTerm{}, exprErrorf("division by zero")
			}
			result = lf / rf // Float/Double: IEEE 754 Inf/NaN, not an error
		} else {
			result = lf / rf
		}
	}
	return e.encodeNumeric(numeric{kind: kind, fval: result})
}

func (e *Evaluator) evalUnaryMinus(n *algebra.UnaryMinus, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	enc, err := e.Eval(n.Operand, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	v, err := e.numericOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if v.kind == kindInteger {
		return e.encodeNumeric(numeric{kind: kindInteger, ival: -v.ival})
	}
	return e.encodeNumeric(numeric{kind: v.kind, fval: -v.fval})
}

func (e *Evaluator) evalUnaryPlus(n *algebra.UnaryPlus, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	enc, err := e.Eval(n.Operand, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if _, err := e.numericOf(enc); err != nil {
		return store.EncodedTerm{}, err
	}
	return enc, nil
}

func (e *Evaluator) evalCompare(n *algebra.Compare, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	leftEnc, err := e.Eval(n.Left, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	rightEnc, err := e.Eval(n.Right, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}

	if n.Op == algebra.CompareEqual || n.Op == algebra.CompareNotEqual {
		lt, err := e.decode(leftEnc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		rt, err := e.decode(rightEnc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		// Numeric/string/date equality still goes through the partial
		// order so 1 = 1.0 holds across lattice rungs; everything else
		// falls back to RDF term equality.
		if cmp, ok, cerr := e.comparePartialOrder(lt, rt); cerr == nil && ok {
			result := cmp == 0
			if n.Op == algebra.CompareNotEqual {
				result = !result
			}
			return e.encodeBool(result)
		}
		result := lt.Equals(rt)
		if n.Op == algebra.CompareNotEqual {
			result = !result
		}
		return e.encodeBool(result)
	}

	lt, err := e.decode(leftEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	rt, err := e.decode(rightEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	cmp, ok, err := e.comparePartialOrder(lt, rt)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if !ok {
		return store.EncodedTerm{}, exprErrorf("incomparable operands %v and %v", lt, rt)
	}
	switch n.Op {
	case algebra.CompareLess:
		return e.encodeBool(cmp < 0)
	case algebra.CompareLessOrEqual:
		return e.encodeBool(cmp <= 0)
	case algebra.CompareGreater:
		return e.encodeBool(cmp > 0)
	default:
		return e.encodeBool(cmp >= 0)
	}
}

// comparePartialOrder implements §4.4's partial order: numeric promotion,
// lexicographic strings (same-or-no language), and RFC3339 instant
// ordering for date/time values. ok is false for incomparable pairs.
func (e *Evaluator) comparePartialOrder(left, right rdf.Term) (int, bool, error) {
	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if !lok || !rok {
		return 0, false, nil
	}

	if ln, lIsNum, _ := e.literalNumeric(ll); lIsNum {
		if rn, rIsNum, _ := e.literalNumeric(rl); rIsNum {
			kind := promote(ln, rn)
			if kind == kindInteger {
				switch {
				case ln.ival < rn.ival:
					return -1, true, nil
				case ln.ival > rn.ival:
					return 1, true, nil
				default:
					return 0, true, nil
				}
			}
			lf, rf := ln.float(), rn.float()
			if math.IsNaN(lf) || math.IsNaN(rf) {
				return 0, false, nil
			}
			switch {
			case lf < rf:
				return -1, true, nil
			case lf > rf:
				return 1, true, nil
			default:
				return 0, true, nil
			}
		}
		return 0, false, nil
	}

	isPlainString := func(l *rdf.Literal) bool {
		return l.Datatype == nil || l.Datatype.IRI == rdf.XSDString.IRI
	}
	if isPlainString(ll) && isPlainString(rl) && ll.Language == rl.Language {
		switch {
		case ll.Value < rl.Value:
			return -1, true, nil
		case ll.Value > rl.Value:
			return 1, true, nil
		default:
			return 0, true, nil
		}
	}

	if ll.Datatype != nil && rl.Datatype != nil && ll.Datatype.IRI == rl.Datatype.IRI && isTemporalDatatype(ll.Datatype.IRI) {
		lt, lerr := parseXSDInstant(ll.Value)
		rt, rerr := parseXSDInstant(rl.Value)
		if lerr != nil || rerr != nil {
			return 0, false, nil
		}
		switch {
		case lt.Before(rt):
			return -1, true, nil
		case lt.After(rt):
			return 1, true, nil
		default:
			return 0, true, nil
		}
	}

	return 0, false, nil
}

func isTemporalDatatype(iri string) bool {
	switch iri {
	case rdf.XSDDateTime.IRI, rdf.XSDDate.IRI, rdf.XSDTime.IRI:
		return true
	default:
		return false
	}
}
