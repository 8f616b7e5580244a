package dataset_test

import (
	"testing"

	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

func newFixture(t *testing.T) *store.QuadStore {
	t.Helper()
	qs := store.NewQuadStore(storage.NewMemoryStorage())
	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	quads := []*rdf.Quad{
		rdf.NewQuad(rdf.NewNamedNode("http://example.org/a"), rdf.NewNamedNode("http://example.org/p"), rdf.NewLiteral("default"), rdf.NewDefaultGraph()),
		rdf.NewQuad(rdf.NewNamedNode("http://example.org/b"), rdf.NewNamedNode("http://example.org/p"), rdf.NewLiteral("g1"), rdf.NewNamedNode("http://example.org/g1")),
		rdf.NewQuad(rdf.NewNamedNode("http://example.org/c"), rdf.NewNamedNode("http://example.org/p"), rdf.NewLiteral("g2"), rdf.NewNamedNode("http://example.org/g2")),
	}
	for _, q := range quads {
		if _, err := w.InsertQuad(q); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	return qs
}

func drain(t *testing.T, it store.QuadIterator) []*rdf.Quad {
	t.Helper()
	defer it.Close()
	var out []*rdf.Quad
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			t.Fatalf("Quad(): %v", err)
		}
		out = append(out, q)
	}
	return out
}

func TestUnrestrictedDefaultGraphIsUnionOfAllGraphs(t *testing.T) {
	qs := newFixture(t)
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()

	view := dataset.New(r, nil, nil)
	quads := drain(t, mustQuery(t, view, nil))
	if len(quads) != 3 {
		t.Fatalf("expected 3 quads in unrestricted default graph, got %d", len(quads))
	}
	for _, q := range quads {
		if q.Graph.Type() != rdf.TermTypeDefaultGraph {
			t.Errorf("expected all quads rewritten to DefaultGraph, got %v", q.Graph)
		}
	}
}

func TestRestrictedDefaultGraphUnionOfListedGraphs(t *testing.T) {
	qs := newFixture(t)
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()

	view := dataset.New(r, []rdf.Term{rdf.NewNamedNode("http://example.org/g1")}, nil)
	quads := drain(t, mustQuery(t, view, nil))
	if len(quads) != 1 {
		t.Fatalf("expected 1 quad from restricted default graph, got %d", len(quads))
	}
	lit, ok := quads[0].Object.(*rdf.Literal)
	if !ok || lit.Value != "g1" {
		t.Errorf("expected the g1 quad, got %v", quads[0])
	}
	if quads[0].Graph.Type() != rdf.TermTypeDefaultGraph {
		t.Errorf("expected graph stripped to DefaultGraph, got %v", quads[0].Graph)
	}
}

func TestNamedGraphRestrictionExcludesOthers(t *testing.T) {
	qs := newFixture(t)
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()

	view := dataset.New(r, nil, []rdf.Term{rdf.NewNamedNode("http://example.org/g1")})

	pattern := &store.Pattern{
		Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: store.NewVariable("o"),
		Graph: rdf.NewNamedNode("http://example.org/g2"),
	}
	it, err := view.QuadsForPattern(pattern)
	if err != nil {
		t.Fatalf("QuadsForPattern: %v", err)
	}
	quads := drain(t, it)
	if len(quads) != 0 {
		t.Errorf("expected g2 to be excluded, got %d quads", len(quads))
	}
}

func TestGraphVariableIteratesVisibleGraphs(t *testing.T) {
	qs := newFixture(t)
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()

	view := dataset.New(r, nil, nil)
	pattern := &store.Pattern{
		Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: store.NewVariable("o"),
		Graph: store.NewVariable("g"),
	}
	it, err := view.QuadsForPattern(pattern)
	if err != nil {
		t.Fatalf("QuadsForPattern: %v", err)
	}
	quads := drain(t, it)
	if len(quads) != 2 {
		t.Fatalf("expected 2 named-graph quads, got %d", len(quads))
	}
	for _, q := range quads {
		if q.Graph.Type() != rdf.TermTypeNamedNode {
			t.Errorf("expected a named graph binding, got %v", q.Graph)
		}
	}
}

func mustQuery(t *testing.T, view *dataset.View, graph any) store.QuadIterator {
	t.Helper()
	it, err := view.QuadsForPattern(&store.Pattern{
		Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: store.NewVariable("o"),
		Graph: graph,
	})
	if err != nil {
		t.Fatalf("QuadsForPattern: %v", err)
	}
	return it
}
