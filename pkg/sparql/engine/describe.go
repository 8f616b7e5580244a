package engine

import (
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// DescribeIterator yields the one-level blank-node closure of every term
// described by a DESCRIBE query's solution set (spec 6: "all quads whose
// subject is in the solution set; blank-node closure one level").
type DescribeIterator struct {
	quads []*rdf.Quad
	pos   int
}

// NewDescribeIterator drains solutions, collecting the distinct terms bound
// to vars plus any explicitly named resources, then emits every quad whose
// subject is one of those terms together with a single extra hop for any
// blank-node object reached that way.
func (e *Engine) NewDescribeIterator(solutions Iterator, vars []algebra.Slot, explicit []rdf.Term) (*DescribeIterator, error) {
	terms := map[string]rdf.Term{}
	add := func(t rdf.Term) {
		if t != nil {
			terms[t.String()] = t
		}
	}
	for _, t := range explicit {
		add(t)
	}
	for solutions.Next() {
		tuple := solutions.Tuple()
		for _, slot := range vars {
			enc, ok := tuple.Get(slot)
			if !ok {
				continue
			}
			t, err := e.decode(enc)
			if err != nil {
				continue
			}
			add(t)
		}
	}
	if err := solutions.Err(); err != nil {
		solutions.Close()
		return nil, err
	}
	if err := solutions.Close(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var quads []*rdf.Quad
	emit := func(q *rdf.Quad) {
		k := quadKey(q)
		if seen[k] {
			return
		}
		seen[k] = true
		quads = append(quads, q)
	}

	var blankClosure []rdf.Term
	for _, t := range terms {
		qs, err := e.describeSubject(t)
		if err != nil {
			return nil, err
		}
		for _, q := range qs {
			emit(q)
			if bn, ok := q.Object.(*rdf.BlankNode); ok {
				blankClosure = append(blankClosure, bn)
			}
		}
	}
	for _, bn := range blankClosure {
		qs, err := e.describeSubject(bn)
		if err != nil {
			return nil, err
		}
		for _, q := range qs {
			emit(q)
		}
	}
	return &DescribeIterator{quads: quads}, nil
}

// describeSubject scans the default graph and every named graph for quads
// with subject s, mirroring candidateSubjects' full-dataset enumeration.
func (e *Engine) describeSubject(s rdf.Term) ([]*rdf.Quad, error) {
	var out []*rdf.Quad
	scan := func(graph rdf.Term) error {
		pattern := &store.Pattern{Subject: s, Predicate: patternVar, Object: patternVar, Graph: graph}
		qi, err := e.view.QuadsForPattern(pattern)
		if err != nil {
			return err
		}
		defer qi.Close()
		for qi.Next() {
			q, err := qi.Quad()
			if err != nil {
				return err
			}
			out = append(out, q)
		}
		return qi.Close()
	}
	if err := scan(rdf.NewDefaultGraph()); err != nil {
		return nil, err
	}
	graphs, err := e.view.NamedGraphs()
	if err != nil {
		return nil, err
	}
	for _, g := range graphs {
		if err := scan(g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *DescribeIterator) Next() bool {
	if d.pos >= len(d.quads) {
		return false
	}
	d.pos++
	return true
}

func (d *DescribeIterator) Quad() (*rdf.Quad, error) { return d.quads[d.pos-1], nil }
func (d *DescribeIterator) Close() error             { return nil }
