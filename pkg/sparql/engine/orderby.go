package engine

import (
	"sort"
	"strconv"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

// compileOrderBy fully materializes Child (its errors flushed first, per
// spec 4.6), then stable-sorts by the comparator chain.
func (e *Engine) compileOrderBy(o *algebra.OrderBy, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(o.Child, input)
	if err != nil {
		return nil, err
	}
	tuples, drainErr := e.drainBounded(child)
	if drainErr != nil {
		return &errIterator{err: drainErr}, nil
	}
	sort.SliceStable(tuples, func(i, j int) bool {
		return e.less(tuples[i], tuples[j], o.Keys)
	})
	return &sliceIterator{tuples: tuples}, nil
}

func (e *Engine) less(a, b *algebra.Tuple, keys []algebra.OrderKey) bool {
	for _, k := range keys {
		av, aerr := e.expr.Eval(k.Expr, a)
		bv, berr := e.expr.Eval(k.Expr, b)
		var at, bt rdf.Term
		if aerr == nil {
			at, _ = e.decode(av)
		}
		if berr == nil {
			bt, _ = e.decode(bv)
		}
		cmp := compareTotalOrder(at, bt)
		if cmp == 0 {
			continue
		}
		if k.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// termRank orders the broad kinds of the total SPARQL order: unbound first,
// then blank nodes, IRIs, literals, triples (spec 4.6: "blanks < IRIs <
// literals < triples").
func termRank(t rdf.Term) int {
	switch t.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return 1
	case *rdf.NamedNode:
		return 2
	case *rdf.Literal:
		return 3
	case *rdf.QuotedTriple:
		return 4
	default:
		return 5
	}
}

// compareTotalOrder implements spec 4.6's ORDER BY comparator: a total order
// over every RDF term (unlike expr's partial comparePartialOrder, which
// rejects incomparable pairs outright), grounded on
// original_source/lib/spareval/src/eval.rs's cmp_terms/cmp_triples.
func compareTotalOrder(a, b rdf.Term) int {
	if a == nil && b == nil {
		return 0
	}
	ra, rb := termRank(a), termRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case *rdf.BlankNode:
		return stringCompare(av.ID, b.(*rdf.BlankNode).ID)
	case *rdf.NamedNode:
		return stringCompare(av.IRI, b.(*rdf.NamedNode).IRI)
	case *rdf.Literal:
		return compareLiteralTotalOrder(av, b.(*rdf.Literal))
	case *rdf.QuotedTriple:
		return compareQuotedTriple(av, b.(*rdf.QuotedTriple))
	default:
		return 0
	}
}

// compareLiteralTotalOrder orders numerically (as float64) when both sides
// are numeric literals, of any numeric datatype, and otherwise falls back to
// (lexical, datatype, language) per spec 4.6's tie-break rule; temporal
// literals are therefore ordered by their lexical form.
func compareLiteralTotalOrder(a, b *rdf.Literal) int {
	if an, aok := literalFloat(a); aok {
		if bn, bok := literalFloat(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	if c := stringCompare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := stringCompare(datatypeIRI(a), datatypeIRI(b)); c != 0 {
		return c
	}
	return stringCompare(a.Language, b.Language)
}

func datatypeIRI(l *rdf.Literal) string {
	if l.Datatype == nil {
		return ""
	}
	return l.Datatype.IRI
}

func literalFloat(l *rdf.Literal) (float64, bool) {
	if l.Datatype == nil {
		return 0, false
	}
	switch l.Datatype.IRI {
	case rdf.XSDInteger.IRI, rdf.XSDDecimal.IRI, rdf.XSDFloat.IRI, rdf.XSDDouble.IRI:
		return parseFloatLenient(l.Value)
	default:
		return 0, false
	}
}

func parseFloatLenient(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func compareQuotedTriple(a, b *rdf.QuotedTriple) int {
	if c := compareTotalOrder(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := stringCompare(termIRIOrValue(a.Predicate), termIRIOrValue(b.Predicate)); c != 0 {
		return c
	}
	return compareTotalOrder(a.Object, b.Object)
}

func termIRIOrValue(t rdf.Term) string {
	if nn, ok := t.(*rdf.NamedNode); ok {
		return nn.IRI
	}
	return t.String()
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
