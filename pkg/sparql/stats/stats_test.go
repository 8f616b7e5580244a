package stats_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
	"github.com/aleksaelezovic/trigo/pkg/sparql/stats"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

type mapInterner struct{ values map[[16]byte][]byte }

func newMapInterner() *mapInterner { return &mapInterner{values: make(map[[16]byte][]byte)} }

func (m *mapInterner) PutHashed(hash [16]byte, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[hash] = cp
	return nil
}

func (m *mapInterner) GetHashed(hash [16]byte) ([]byte, error) {
	v, ok := m.values[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

const (
	slotS algebra.Slot = iota
	slotO
)

func boundTerm(enc store.EncodedTerm) algebra.PatternTerm {
	return algebra.PatternTerm{Bound: &enc}
}

func boundVar(slot algebra.Slot) algebra.PatternTerm {
	return algebra.PatternTerm{Slot: slot, IsSlot: true}
}

func defaultGraphTerm() algebra.PatternTerm {
	return algebra.PatternTerm{AnyName: true}
}

func newKnowsFixture(t *testing.T, cancel engine.CancelFunc) (*engine.Engine, func(rdf.Term) store.EncodedTerm) {
	t.Helper()
	qs := store.NewQuadStore(storage.NewMemoryStorage())
	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")
	knows := rdf.NewNamedNode("http://example.org/knows")
	for _, q := range []*rdf.Quad{
		rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, knows, carol, rdf.NewDefaultGraph()),
	} {
		if _, err := w.InsertQuad(q); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	t.Cleanup(func() { r.Close() })

	interner := newMapInterner()
	view := dataset.New(r, nil, nil)
	e := engine.New(view, interner, "http://example.org/", time.Unix(0, 0), nil, nil, cancel)
	encoder := store.NewEncoder()
	enc := func(term rdf.Term) store.EncodedTerm {
		v, err := encoder.EncodeTerm(interner, term)
		if err != nil {
			t.Fatalf("EncodeTerm: %v", err)
		}
		return v
	}
	return e, enc
}

func TestCancellationTokenStopsIterationOnNextProbe(t *testing.T) {
	token := stats.NewCancellationToken()
	e, enc := newKnowsFixture(t, token.Func())
	knows := rdf.NewNamedNode("http://example.org/knows")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	it, err := e.Compile(scan, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("expected at least one row before cancellation")
	}
	token.Cancel()
	if it.Next() {
		t.Fatalf("expected Next to stop once the token is cancelled")
	}
	if err := it.Err(); err != engine.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRecorderAttachesCountsToMatchingNodes(t *testing.T) {
	e, enc := newKnowsFixture(t, nil)
	knows := rdf.NewNamedNode("http://example.org/knows")
	alice := rdf.NewNamedNode("http://example.org/alice")

	left := &algebra.QuadPattern{
		Subject:   boundTerm(enc(alice)),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	filter := &algebra.Filter{
		Child: left,
		Expr:  &algebra.Bound{Slot: slotO},
	}

	tree := stats.Describe(filter)
	rec := stats.NewRecorder(tree)
	e.SetInstrument(rec.Hook())

	it, err := e.Compile(filter, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 matching rows, got %d", count)
	}

	if tree.Name != "Filter" || len(tree.Children) != 1 || tree.Children[0].Name != "QuadPattern" {
		t.Fatalf("unexpected tree shape: %+v", tree)
	}
	if tree.Count == nil || *tree.Count != 2 {
		t.Fatalf("expected the Filter node's count to be 2, got %v", tree.Count)
	}
	if tree.Children[0].Count == nil || *tree.Children[0].Count != 2 {
		t.Fatalf("expected the QuadPattern node's count to be 2, got %v", tree.Children[0].Count)
	}

	blob, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(blob) == 0 {
		t.Fatalf("expected a non-empty EXPLAIN JSON tree")
	}
}
