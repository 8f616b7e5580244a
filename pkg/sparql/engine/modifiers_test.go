package engine_test

import (
	"testing"
	"time"

	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

func TestFilterKeepsOnlyPassingTuples(t *testing.T) {
	e, _, enc, dec := newPeopleFixture(t)
	age := rdf.NewNamedNode("http://example.org/age")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(age)),
		Object:    boundVar(slotAge),
		Graph:     defaultGraphTerm(),
	}
	f := &algebra.Filter{
		Child: scan,
		Expr: &algebra.Compare{
			Op:    algebra.CompareGreater,
			Left:  &algebra.Var{Slot: slotAge},
			Right: &algebra.Const{Term: enc(rdf.NewIntegerLiteral(30))},
		},
	}
	it, err := e.Compile(f, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got := drainIRIs(t, it, slotS, dec)
	if len(got) != 1 || got[0] != "http://example.org/carol" {
		t.Fatalf("got %v, want [http://example.org/carol] (only carol is over 30)", got)
	}
}

func TestExtendBindsArithmeticResult(t *testing.T) {
	e, _, enc, dec := newPeopleFixture(t)
	age := rdf.NewNamedNode("http://example.org/age")
	bob := rdf.NewNamedNode("http://example.org/bob")

	scan := &algebra.QuadPattern{
		Subject:   boundTerm(enc(bob)),
		Predicate: boundTerm(enc(age)),
		Object:    boundVar(slotAge),
		Graph:     defaultGraphTerm(),
	}
	bumped := algebra.Slot(500)
	ex := &algebra.Extend{
		Child: scan,
		Slot:  bumped,
		Expr: &algebra.Arithmetic{
			Op:    algebra.ArithAdd,
			Left:  &algebra.Var{Slot: slotAge},
			Right: &algebra.Const{Term: enc(rdf.NewIntegerLiteral(10))},
		},
	}
	it, err := e.Compile(ex, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("expected one row")
	}
	v, ok := it.Tuple().Get(bumped)
	if !ok {
		t.Fatalf("expected the bound slot to carry the extended value")
	}
	lit, ok := dec(v).(*rdf.Literal)
	if !ok || lit.Value != "40" {
		t.Fatalf("expected 30+10=40, got %v", dec(v))
	}
}

func TestUnionConcatenatesBothBranches(t *testing.T) {
	e, _, enc, dec := newPeopleFixture(t)
	knows := rdf.NewNamedNode("http://example.org/knows")
	age := rdf.NewNamedNode("http://example.org/age")
	alice := rdf.NewNamedNode("http://example.org/alice")

	left := &algebra.QuadPattern{
		Subject:   boundTerm(enc(alice)),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	right := &algebra.QuadPattern{
		Subject:   boundVar(slotO),
		Predicate: boundTerm(enc(age)),
		Object:    boundVar(slotAge),
		Graph:     defaultGraphTerm(),
	}
	u := &algebra.Union{Children: []algebra.GraphPattern{left, right}}
	it, err := e.Compile(u, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	// left yields 2 rows (alice knows bob, alice knows carol); right yields 2
	// (bob age 30, carol age 40, both unconstrained by alice here).
	if count != 4 {
		t.Fatalf("expected 4 rows total across both union branches, got %d", count)
	}
}

func TestServiceSilentFallsBackToInputOnMissingHandler(t *testing.T) {
	qs := store.NewQuadStore(storage.NewMemoryStorage())
	w, err := qs.Writer()
	if err != nil {
		t.Fatalf("Writer(): %v", err)
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
	e := engine.New(view, interner, "http://example.org/", time.Unix(0, 0), nil, nil, nil)

	svc := &algebra.Service{
		Name:   &algebra.Const{Term: mustEncode(t, interner, rdf.NewNamedNode("http://example.org/sparql"))},
		Inner:  &algebra.Values{Rows: []*algebra.Tuple{algebra.NewTuple()}},
		Silent: true,
	}
	input := algebra.NewTuple().With(slotS, mustEncode(t, interner, rdf.NewIntegerLiteral(1)))
	it, err := e.Compile(svc, input)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("expected the silent fallback to yield the input tuple")
	}
	if _, ok := it.Tuple().Get(slotS); !ok {
		t.Fatalf("expected the fallback tuple to still carry the input binding")
	}
	if it.Next() {
		t.Fatalf("expected exactly one fallback row")
	}
}

func mustEncode(t *testing.T, interner store.Interner, term rdf.Term) store.EncodedTerm {
	t.Helper()
	enc, err := store.NewEncoder().EncodeTerm(interner, term)
	if err != nil {
		t.Fatalf("EncodeTerm: %v", err)
	}
	return enc
}
