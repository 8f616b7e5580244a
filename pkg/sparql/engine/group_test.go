package engine_test

import (
	"strconv"
	"testing"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

const (
	slotAge algebra.Slot = iota + 100
	slotCount
	slotSum
	slotAvg
	slotMin
	slotMax
)

func TestGroupZeroKeyAggregates(t *testing.T) {
	e, _, enc, dec := newPeopleFixture(t)
	age := rdf.NewNamedNode("http://example.org/age")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(age)),
		Object:    boundVar(slotAge),
		Graph:     defaultGraphTerm(),
	}
	g := &algebra.Group{
		Child: scan,
		Keys:  nil,
		Aggregates: []algebra.Aggregate{
			{Kind: algebra.AggregateCount, Expr: &algebra.Var{Slot: slotAge}, Output: slotCount},
			{Kind: algebra.AggregateSum, Expr: &algebra.Var{Slot: slotAge}, Output: slotSum},
			{Kind: algebra.AggregateAvg, Expr: &algebra.Var{Slot: slotAge}, Output: slotAvg},
			{Kind: algebra.AggregateMin, Expr: &algebra.Var{Slot: slotAge}, Output: slotMin},
			{Kind: algebra.AggregateMax, Expr: &algebra.Var{Slot: slotAge}, Output: slotMax},
		},
	}
	it, err := e.Compile(g, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("expected exactly one bucket for a zero-key group")
	}
	tuple := it.Tuple()

	wantInt := func(slot algebra.Slot, want int64) {
		t.Helper()
		v, ok := tuple.Get(slot)
		if !ok {
			t.Fatalf("slot %d unbound", slot)
		}
		lit, ok := dec(v).(*rdf.Literal)
		if !ok {
			t.Fatalf("expected a literal for slot %d, got %T", slot, dec(v))
		}
		if lit.Value != strconv.FormatInt(want, 10) {
			t.Fatalf("slot %d: got %q, want %d", slot, lit.Value, want)
		}
	}
	wantInt(slotCount, 2)
	wantInt(slotSum, 70)
	wantInt(slotMin, 30)
	wantInt(slotMax, 40)

	if it.Next() {
		t.Fatalf("expected exactly one bucket, got a second")
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
}

func TestGroupByKeyBucketsSeparately(t *testing.T) {
	e, _, enc, dec := newPeopleFixture(t)
	knows := rdf.NewNamedNode("http://example.org/knows")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	g := &algebra.Group{
		Child: scan,
		Keys:  []algebra.Slot{slotS},
		Aggregates: []algebra.Aggregate{
			{Kind: algebra.AggregateCount, Expr: &algebra.Var{Slot: slotO}, Output: slotCount},
		},
	}
	it, err := e.Compile(g, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	counts := map[string]int64{}
	for it.Next() {
		tuple := it.Tuple()
		sEnc, _ := tuple.Get(slotS)
		nn, ok := dec(sEnc).(*rdf.NamedNode)
		if !ok {
			t.Fatalf("expected a NamedNode key")
		}
		cEnc, _ := tuple.Get(slotCount)
		lit, ok := dec(cEnc).(*rdf.Literal)
		if !ok {
			t.Fatalf("expected a literal count")
		}
		n, err := strconv.ParseInt(lit.Value, 10, 64)
		if err != nil {
			t.Fatalf("ParseInt(%q): %v", lit.Value, err)
		}
		counts[nn.IRI] = n
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if counts["http://example.org/alice"] != 2 {
		t.Fatalf("expected alice to know 2 people, got %d", counts["http://example.org/alice"])
	}
	if counts["http://example.org/bob"] != 1 {
		t.Fatalf("expected bob to know 1 person, got %d", counts["http://example.org/bob"])
	}
}
