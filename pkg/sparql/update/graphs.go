package update

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

// load fetches op.IRI and streams every parsed quad into op.Into (nil means
// the default graph), per spec 4.7's Load operation. No concrete RDF syntax
// parser ships with this module (spec.md §1); the Decoder registered for the
// response's Content-Type does the actual parsing.
func (x *Executor) load(op *algebra.Load) error {
	if err := x.doLoad(op); err != nil {
		if op.Silent {
			return nil
		}
		return err
	}
	return nil
}

func (x *Executor) doLoad(op *algebra.Load) error {
	contentType, body, err := x.fetch(op.IRI)
	if err != nil {
		return fmt.Errorf("update: load %s: %w", op.IRI, err)
	}
	defer body.Close()

	decode, ok := x.decoders[contentType]
	if !ok {
		return fmt.Errorf("update: load %s: no decoder registered for content type %q", op.IRI, contentType)
	}
	src, err := decode(body)
	if err != nil {
		return fmt.Errorf("update: load %s: %w", op.IRI, err)
	}

	into := rdf.Term(rdf.NewDefaultGraph())
	if op.Into != nil {
		into, err = x.decode(*op.Into)
		if err != nil {
			return err
		}
	}
	for src.Next() {
		q, err := src.Quad()
		if err != nil {
			return err
		}
		q.Graph = into
		if _, err := x.writer.InsertQuad(q); err != nil {
			return err
		}
	}
	return src.Err()
}

// graphExists checks the graphs set (not membership in any index) for the
// named graph, matching §3.4's "the graphs set tracks membership even for
// empty graphs" invariant -- Reader.ListGraphs is the only exported way to
// observe it.
func (x *Executor) graphExists(g rdf.Term) (bool, error) {
	r, err := x.qs.Reader()
	if err != nil {
		return false, err
	}
	defer r.Close()
	graphs, err := r.ListGraphs()
	if err != nil {
		return false, err
	}
	for _, existing := range graphs {
		if existing.Equals(g) {
			return true, nil
		}
	}
	return false, nil
}

func (x *Executor) clear(op *algebra.Clear) error {
	switch {
	case op.Graph != nil:
		g, err := x.decode(*op.Graph)
		if err != nil {
			return err
		}
		exists, err := x.graphExists(g)
		if err != nil {
			return err
		}
		if !exists {
			if op.Silent {
				return nil
			}
			return fmt.Errorf("update: clear: graph %s does not exist", g)
		}
		return x.writer.ClearGraph(g)
	case op.All:
		return x.writer.ClearAll()
	case op.Named:
		return x.writer.ClearAllNamed()
	default:
		return x.writer.ClearDefault()
	}
}

func (x *Executor) create(op *algebra.Create) error {
	g, err := x.decode(op.Graph)
	if err != nil {
		return err
	}
	exists, err := x.graphExists(g)
	if err != nil {
		return err
	}
	if exists {
		if op.Silent {
			return nil
		}
		return fmt.Errorf("update: create: graph %s already exists", g)
	}
	return x.writer.CreateGraph(g)
}

func (x *Executor) drop(op *algebra.Drop) error {
	switch {
	case op.Graph != nil:
		g, err := x.decode(*op.Graph)
		if err != nil {
			return err
		}
		exists, err := x.graphExists(g)
		if err != nil {
			return err
		}
		if !exists {
			if op.Silent {
				return nil
			}
			return fmt.Errorf("update: drop: graph %s does not exist", g)
		}
		return x.writer.DropGraph(g)
	case op.All:
		return x.writer.ClearAll()
	case op.Named:
		return x.writer.ClearAllNamed()
	default:
		return x.writer.ClearDefault()
	}
}
