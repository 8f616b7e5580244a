package engine_test

import (
	"testing"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
)

func TestOrderByFailsOnceRowBudgetExceeded(t *testing.T) {
	e, _, enc, _ := newPeopleFixture(t)
	knows := rdf.NewNamedNode("http://example.org/knows")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	o := &algebra.OrderBy{
		Child: scan,
		Keys:  []algebra.OrderKey{{Expr: &algebra.Var{Slot: slotO}}},
	}

	e.SetMemoryBudget(2)
	it, err := e.Compile(o, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if it.Next() {
		t.Fatalf("expected ORDER BY to fail before yielding any row once the budget is exceeded")
	}
	if err := it.Err(); err != engine.ErrMemoryBudgetExceeded {
		t.Fatalf("expected ErrMemoryBudgetExceeded, got %v", err)
	}
}

func TestDistinctFailsOnceSeenSetBudgetExceeded(t *testing.T) {
	e, _, enc, _ := newPeopleFixture(t)
	knows := rdf.NewNamedNode("http://example.org/knows")

	scan := &algebra.QuadPattern{
		Subject:   boundVar(slotS),
		Predicate: boundTerm(enc(knows)),
		Object:    boundVar(slotO),
		Graph:     defaultGraphTerm(),
	}
	d := &algebra.Distinct{Child: scan}

	e.SetMemoryBudget(1)
	it, err := e.Compile(d, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("expected the first distinct row to be yielded before the budget is hit")
	}
	if it.Next() {
		t.Fatalf("expected a second distinct row to fail once the seen-set budget is exceeded")
	}
	if err := it.Err(); err != engine.ErrMemoryBudgetExceeded {
		t.Fatalf("expected ErrMemoryBudgetExceeded, got %v", err)
	}
}
