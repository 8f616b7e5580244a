package update

import (
	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// modify evaluates op.Where against a fresh store.Reader snapshot, collecting
// every solution before touching the Writer: the Writer exposes no read-back
// view of its own in-progress transaction, so materializing first gives the
// same snapshot-isolated WHERE clause a separate reader would give even if
// the deletes/inserts below interleaved with it.
func (x *Executor) modify(op *algebra.Modify) error {
	r, err := x.qs.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	defaultGraphs, err := x.decodeGraphSet(op.DefaultGraphs)
	if err != nil {
		return err
	}
	namedGraphs, err := x.decodeGraphSet(op.NamedGraphs)
	if err != nil {
		return err
	}
	view := dataset.New(r, defaultGraphs, namedGraphs)
	e := engine.New(view, x.interner, x.baseIRI, x.now, x.custom, x.services, nil)

	it, err := e.Compile(op.Where, algebra.NewTuple())
	if err != nil {
		return err
	}
	var rows []*algebra.Tuple
	for it.Next() {
		rows = append(rows, it.Tuple())
	}
	closeErr := it.Close()
	if err := it.Err(); err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	for _, row := range rows {
		for _, tmpl := range op.Delete {
			q, ok, err := x.instantiate(tmpl, row, nil)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := x.writer.RemoveQuad(q); err != nil {
				return err
			}
		}
		// A fresh blank-node map per solution: Insert mints a new blank node
		// for every unbound template slot each time WHERE matches again.
		blanks := map[algebra.Slot]rdf.Term{}
		for _, tmpl := range op.Insert {
			q, ok, err := x.instantiate(tmpl, row, blanks)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := x.writer.InsertQuad(q); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeGraphSet turns a Modify's USING/USING NAMED EncodedTerm list into the
// rdf.Term list dataset.View expects, preserving the nil-vs-empty distinction
// (nil means "no restriction", not "restricted to nothing").
func (x *Executor) decodeGraphSet(encoded []store.EncodedTerm) ([]rdf.Term, error) {
	if encoded == nil {
		return nil, nil
	}
	terms := make([]rdf.Term, len(encoded))
	for i, enc := range encoded {
		t, err := x.decode(enc)
		if err != nil {
			return nil, err
		}
		terms[i] = t
	}
	return terms, nil
}
