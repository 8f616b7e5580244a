package update_test

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/update"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// mapInterner mirrors the fixture used across the sparql test packages.
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

func boundTerm(enc store.EncodedTerm) algebra.PatternTerm {
	return algebra.PatternTerm{Bound: &enc}
}

func defaultGraphTerm() algebra.PatternTerm {
	return algebra.PatternTerm{AnyName: true}
}

func newEmptyStore(t *testing.T) (*store.QuadStore, *mapInterner, func(rdf.Term) store.EncodedTerm) {
	t.Helper()
	qs := store.NewQuadStore(storage.NewMemoryStorage())
	interner := newMapInterner()
	encoder := store.NewEncoder()
	enc := func(term rdf.Term) store.EncodedTerm {
		v, err := encoder.EncodeTerm(interner, term)
		if err != nil {
			t.Fatalf("EncodeTerm: %v", err)
		}
		return v
	}
	return qs, interner, enc
}

func countDefaultGraph(t *testing.T, qs *store.QuadStore) int64 {
	t.Helper()
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()
	it, err := r.Query(&store.Pattern{
		Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: store.NewVariable("o"),
	})
	if err != nil {
		t.Fatalf("Query(): %v", err)
	}
	defer it.Close()
	var n int64
	for it.Next() {
		n++
	}
	return n
}

// readAllDefaultGraphQuads drains every quad in the default graph, for
// tests that want to assert on the exact quads committed rather than just a
// count.
func readAllDefaultGraphQuads(t *testing.T, qs *store.QuadStore) []*rdf.Quad {
	t.Helper()
	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()
	it, err := r.Query(&store.Pattern{
		Subject:   store.NewVariable("s"),
		Predicate: store.NewVariable("p"),
		Object:    store.NewVariable("o"),
	})
	if err != nil {
		t.Fatalf("Query(): %v", err)
	}
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

func TestInsertDataAddsGroundQuads(t *testing.T) {
	qs, interner, enc := newEmptyStore(t)
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://example.org/knows")
	bob := rdf.NewNamedNode("http://example.org/bob")

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)
	op := &algebra.InsertData{Quads: []algebra.QuadTemplate{
		{Subject: boundTerm(enc(alice)), Predicate: boundTerm(enc(knows)), Object: boundTerm(enc(bob)), Graph: defaultGraphTerm()},
	}}
	if err := x.Execute([]algebra.Update{op}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	if n := countDefaultGraph(t, qs); n != 1 {
		t.Fatalf("expected 1 quad after INSERT DATA, got %d", n)
	}

	// INSERT DATA quads are always ground (no blank nodes in this template),
	// so canonical N-Quads comparison is exact -- no isomorphism needed.
	got := rdf.SerializeQuadsCanonical(readAllDefaultGraphQuads(t, qs))
	want := rdf.SerializeQuadsCanonical([]*rdf.Quad{
		rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph()),
	})
	if got != want {
		t.Fatalf("canonical N-Quads mismatch:\n got:  %q\n want: %q", got, want)
	}
}

func TestDeleteDataRemovesMatchingQuad(t *testing.T) {
	qs, interner, enc := newEmptyStore(t)
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://example.org/knows")
	bob := rdf.NewNamedNode("http://example.org/bob")

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	if _, err := w.InsertQuad(rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}

	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)
	op := &algebra.DeleteData{Quads: []algebra.QuadTemplate{
		{Subject: boundTerm(enc(alice)), Predicate: boundTerm(enc(knows)), Object: boundTerm(enc(bob)), Graph: defaultGraphTerm()},
	}}
	if err := x.Execute([]algebra.Update{op}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	if n := countDefaultGraph(t, qs); n != 0 {
		t.Fatalf("expected 0 quads after DELETE DATA, got %d", n)
	}
}

func TestClearDefaultEmptiesDefaultGraphOnly(t *testing.T) {
	qs, interner, enc := newEmptyStore(t)
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://example.org/knows")
	bob := rdf.NewNamedNode("http://example.org/bob")
	graphG := rdf.NewNamedNode("http://example.org/g")
	_ = enc

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	if _, err := w.InsertQuad(rdf.NewQuad(alice, knows, bob, rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if _, err := w.InsertQuad(rdf.NewQuad(alice, knows, bob, graphG)); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}

	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)
	if err := x.Execute([]algebra.Update{&algebra.Clear{}}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	if n := countDefaultGraph(t, qs); n != 0 {
		t.Fatalf("expected the default graph empty after CLEAR DEFAULT, got %d", n)
	}

	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()
	ok, err := r.Contains(rdf.NewQuad(alice, knows, bob, graphG))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !ok {
		t.Fatalf("expected the named graph to survive CLEAR DEFAULT")
	}
}

func TestCreateExistingGraphFailsUnlessSilent(t *testing.T) {
	qs, interner, _ := newEmptyStore(t)
	g := rdf.NewNamedNode("http://example.org/g")

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)

	ge, err := store.NewEncoder().EncodeTerm(interner, g)
	if err != nil {
		t.Fatalf("EncodeTerm: %v", err)
	}
	if err := x.Execute([]algebra.Update{&algebra.Create{Graph: ge}}); err != nil {
		t.Fatalf("first CREATE: %v", err)
	}
	err = x.Execute([]algebra.Update{&algebra.Create{Graph: ge}})
	if err == nil {
		t.Fatalf("expected a non-silent re-CREATE to fail")
	}
	if err := x.Execute([]algebra.Update{&algebra.Create{Graph: ge, Silent: true}}); err != nil {
		t.Fatalf("silent re-CREATE: %v", err)
	}
}

func TestDropMissingGraphFailsUnlessSilent(t *testing.T) {
	qs, interner, _ := newEmptyStore(t)
	g := rdf.NewNamedNode("http://example.org/absent")

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)

	ge, err := store.NewEncoder().EncodeTerm(interner, g)
	if err != nil {
		t.Fatalf("EncodeTerm: %v", err)
	}
	if err := x.Execute([]algebra.Update{&algebra.Drop{Graph: &ge}}); err == nil {
		t.Fatalf("expected DROP of a missing graph to fail")
	}
	if err := x.Execute([]algebra.Update{&algebra.Drop{Graph: &ge, Silent: true}}); err != nil {
		t.Fatalf("silent DROP of a missing graph: %v", err)
	}
}

func TestModifyDeletesBeforeInsertingAndRefreshesBlanksPerSolution(t *testing.T) {
	qs, interner, enc := newEmptyStore(t)
	age := rdf.NewNamedNode("http://example.org/age")
	label := rdf.NewNamedNode("http://example.org/label")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")

	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	for _, q := range []*rdf.Quad{
		rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(30), rdf.NewDefaultGraph()),
		rdf.NewQuad(carol, age, rdf.NewIntegerLiteral(40), rdf.NewDefaultGraph()),
	} {
		if _, err := w.InsertQuad(q); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}

	w, err = qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
	}
	x := update.New(qs, w, interner, "http://example.org/", time.Now().Local(), nil, nil, nil, nil)

	const slotS algebra.Slot = 0
	const slotAge algebra.Slot = 1
	const blankSlot algebra.Slot = 999

	where := &algebra.QuadPattern{
		Subject:   algebra.PatternTerm{Slot: slotS, IsSlot: true},
		Predicate: boundTerm(enc(age)),
		Object:    algebra.PatternTerm{Slot: slotAge, IsSlot: true},
		Graph:     defaultGraphTerm(),
	}
	op := &algebra.Modify{
		Where: where,
		Delete: []algebra.QuadTemplate{
			{
				Subject:   algebra.PatternTerm{Slot: slotS, IsSlot: true},
				Predicate: boundTerm(enc(age)),
				Object:    algebra.PatternTerm{Slot: slotAge, IsSlot: true},
				Graph:     defaultGraphTerm(),
			},
		},
		Insert: []algebra.QuadTemplate{
			{
				Subject:   algebra.PatternTerm{Slot: slotS, IsSlot: true},
				Predicate: boundTerm(enc(label)),
				Object:    algebra.PatternTerm{Slot: blankSlot, IsSlot: true},
				Graph:     defaultGraphTerm(),
			},
		},
	}
	if err := x.Execute([]algebra.Update{op}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}

	r, err := qs.Reader()
	if err != nil {
		t.Fatalf("Reader(): %v", err)
	}
	defer r.Close()
	n, err := r.Count()
	if err != nil {
		t.Fatalf("Count(): %v", err)
	}
	// both age quads replaced by a label quad: 2 remain, none use the age predicate.
	if n != 2 {
		t.Fatalf("expected 2 quads after DELETE/INSERT, got %d", n)
	}
	ok, err := r.Contains(rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(30), rdf.NewDefaultGraph()))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatalf("expected the old age quad to be deleted")
	}

	// The two surviving quads carry freshly minted blank-node objects (one
	// per WHERE solution), so a straight rdf.Quad comparison would fail on
	// the object alone. Diff the subject/predicate pairs instead, which
	// rebinding-per-solution must still get right regardless of blank-node
	// identity.
	type subjPred struct{ Subject, Predicate string }
	toPairs := func(quads []*rdf.Quad) []subjPred {
		pairs := make([]subjPred, 0, len(quads))
		for _, q := range quads {
			pairs = append(pairs, subjPred{
				Subject:   q.Subject.(*rdf.NamedNode).IRI,
				Predicate: q.Predicate.(*rdf.NamedNode).IRI,
			})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].Subject < pairs[j].Subject })
		return pairs
	}
	got := toPairs(readAllDefaultGraphQuads(t, qs))
	want := []subjPred{
		{Subject: bob.IRI, Predicate: label.IRI},
		{Subject: carol.IRI, Predicate: label.IRI},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("subject/predicate pairs mismatch (-want +got):\n%s", diff)
	}
	for _, q := range readAllDefaultGraphQuads(t, qs) {
		if _, ok := q.Object.(*rdf.BlankNode); !ok {
			t.Fatalf("expected a blank-node object, got %T", q.Object)
		}
	}
}
