package engine

import (
	"github.com/google/uuid"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

// constructDedupCap is the ~1Mi-entry cap on ConstructIterator's
// already-emitted-triples set (spec 5: "a best-effort dedup"). Once full the
// set is dropped and dedup silently stops, rather than the operator
// failing -- CONSTRUCT output is a lazy stream, not a materialized
// collection the memory-discipline rule's hard failure applies to.
const constructDedupCap = 1 << 20

// ConstructIterator instantiates Templates against every solution of
// Solutions, deduplicating ground triples up to constructDedupCap but always
// re-emitting any triple that carries a blank node, since CONSTRUCT mints a
// fresh blank node per solution for every template slot the solution itself
// doesn't bind (spec 4.6, 5, 9).
type ConstructIterator struct {
	e         *Engine
	solutions Iterator
	templates []algebra.QuadTemplate
	blanks    func() *rdf.BlankNode

	pending []*rdf.Quad
	seen    map[string]bool
	dropped bool
	current *rdf.Quad
	err     error
}

// NewConstructIterator drives a CONSTRUCT/DESCRIBE template against a
// compiled solution stream. blanks is the factory minting fresh blank nodes
// for unbound template slots; a nil value defaults to a UUID-keyed one
// (the same identity source expr's BNODE() function uses).
func NewConstructIterator(e *Engine, solutions Iterator, templates []algebra.QuadTemplate, blanks func() *rdf.BlankNode) *ConstructIterator {
	if blanks == nil {
		blanks = func() *rdf.BlankNode { return rdf.NewBlankNode(uuid.New().String()) }
	}
	return &ConstructIterator{e: e, solutions: solutions, templates: templates, blanks: blanks, seen: map[string]bool{}}
}

// resolveTemplateTerm is resolveTerm extended with a per-solution blank-node
// cache: a slot not bound by the solution is a template-local blank node,
// minted once and reused for every other occurrence of the same slot within
// this solution's triples.
func (e *Engine) resolveTemplateTerm(pt algebra.PatternTerm, tuple *algebra.Tuple, fresh func(algebra.Slot) rdf.Term) (rdf.Term, error) {
	if pt.AnyName {
		return rdf.NewDefaultGraph(), nil
	}
	if !pt.IsSlot {
		return e.decode(*pt.Bound)
	}
	if enc, ok := tuple.Get(pt.Slot); ok {
		return e.decode(enc)
	}
	return fresh(pt.Slot), nil
}

func (c *ConstructIterator) instantiate(tuple *algebra.Tuple) {
	blanksBySlot := map[algebra.Slot]rdf.Term{}
	fresh := func(slot algebra.Slot) rdf.Term {
		if t, ok := blanksBySlot[slot]; ok {
			return t
		}
		bn := c.blanks()
		blanksBySlot[slot] = bn
		return bn
	}
	for _, tmpl := range c.templates {
		s, err := c.e.resolveTemplateTerm(tmpl.Subject, tuple, fresh)
		if err != nil {
			continue
		}
		p, err := c.e.resolveTemplateTerm(tmpl.Predicate, tuple, fresh)
		if err != nil {
			continue
		}
		o, err := c.e.resolveTemplateTerm(tmpl.Object, tuple, fresh)
		if err != nil {
			continue
		}
		if !isValidPredicate(p) {
			continue // spec 1: predicate is never a literal or blank node
		}
		c.pending = append(c.pending, &rdf.Quad{Subject: s, Predicate: p, Object: o, Graph: rdf.NewDefaultGraph()})
	}
}

func isValidPredicate(t rdf.Term) bool {
	_, ok := t.(*rdf.NamedNode)
	return ok
}

func hasBlankNode(q *rdf.Quad) bool {
	_, sOK := q.Subject.(*rdf.BlankNode)
	_, oOK := q.Object.(*rdf.BlankNode)
	return sOK || oOK
}

func quadKey(q *rdf.Quad) string {
	return q.Subject.String() + " " + q.Predicate.String() + " " + q.Object.String()
}

func (c *ConstructIterator) Next() bool {
	if c.err != nil {
		return false
	}
	for {
		for len(c.pending) > 0 {
			q := c.pending[0]
			c.pending = c.pending[1:]
			if !hasBlankNode(q) && !c.dropped {
				k := quadKey(q)
				if c.seen[k] {
					continue
				}
				if len(c.seen) >= constructDedupCap {
					c.dropped = true // cap reached: stop deduplicating, keep streaming
				} else {
					c.seen[k] = true
				}
			}
			c.current = q
			return true
		}
		if !c.solutions.Next() {
			c.err = c.solutions.Err()
			return false
		}
		c.instantiate(c.solutions.Tuple())
	}
}

func (c *ConstructIterator) Quad() *rdf.Quad { return c.current }
func (c *ConstructIterator) Err() error      { return c.err }
func (c *ConstructIterator) Close() error    { return c.solutions.Close() }
