// Package algebra defines the tagged-sum intermediate representation the
// evaluator packages (expr, path, engine, update) consume: Expression,
// GraphPattern, Path, Aggregate, and Update trees, plus the Tuple value that
// flows through evaluation. This tree is the "already-optimized, externally
// produced" algebra spec.md's ExpressionEvaluator/GraphPatternEvaluator take
// as input — no parser or planner lives in this module.
package algebra

import "github.com/aleksaelezovic/trigo/pkg/store"

// Slot identifies one variable's position within a Tuple. Slot assignment is
// append-only within one query evaluation and built once during planning
// (spec.md §3.3); projection is slot remapping, not a tuple rewrite.
type Slot int

// Tuple is an ordered, index-addressed partial map from Slot to EncodedTerm.
// Absence of a slot means "unbound" (spec.md §3.3).
type Tuple struct {
	bound map[Slot]store.EncodedTerm
}

// NewTuple returns an empty tuple (every slot unbound).
func NewTuple() *Tuple {
	return &Tuple{bound: make(map[Slot]store.EncodedTerm)}
}

// Get returns the term bound to slot, and whether it is bound at all.
func (t *Tuple) Get(slot Slot) (store.EncodedTerm, bool) {
	v, ok := t.bound[slot]
	return v, ok
}

// With returns a new Tuple equal to t but with slot bound to term,
// leaving t itself unmodified (evaluation never mutates a Tuple in place,
// since the same partial solution may feed multiple downstream branches).
func (t *Tuple) With(slot Slot, term store.EncodedTerm) *Tuple {
	out := &Tuple{bound: make(map[Slot]store.EncodedTerm, len(t.bound)+1)}
	for k, v := range t.bound {
		out.bound[k] = v
	}
	out.bound[slot] = term
	return out
}

// Slots returns every currently-bound slot, in no particular order.
func (t *Tuple) Slots() []Slot {
	out := make([]Slot, 0, len(t.bound))
	for k := range t.bound {
		out = append(out, k)
	}
	return out
}

// Len reports how many slots are bound.
func (t *Tuple) Len() int { return len(t.bound) }

// Compatible reports whether t and other agree on every slot they both bind
// (spec.md §3.3: "compatible if every slot they both bind holds the same
// EncodedTerm").
func (t *Tuple) Compatible(other *Tuple) bool {
	small, large := t, other
	if len(small.bound) > len(large.bound) {
		small, large = large, small
	}
	for k, v := range small.bound {
		if ov, ok := large.bound[k]; ok && ov != v {
			return false
		}
	}
	return true
}

// CompatibleAndNotDisjoint reports whether t and other are Compatible AND
// share at least one bound slot (spec.md §3.3).
func (t *Tuple) CompatibleAndNotDisjoint(other *Tuple) bool {
	shared := false
	small, large := t, other
	if len(small.bound) > len(large.bound) {
		small, large = large, small
	}
	for k, v := range small.bound {
		ov, ok := large.bound[k]
		if !ok {
			continue
		}
		if ov != v {
			return false
		}
		shared = true
	}
	return shared
}

// Combine returns the union of t and other's bindings. The result is only
// meaningful when t.Compatible(other); combining an incompatible pair
// silently lets other's binding win on overlapping slots, so callers MUST
// check Compatible first (spec.md §3.3 leaves combination of incompatible
// tuples undefined; this module treats that as a caller precondition rather
// than a runtime panic).
func (t *Tuple) Combine(other *Tuple) *Tuple {
	out := &Tuple{bound: make(map[Slot]store.EncodedTerm, len(t.bound)+len(other.bound))}
	for k, v := range t.bound {
		out.bound[k] = v
	}
	for k, v := range other.bound {
		out.bound[k] = v
	}
	return out
}

// Project returns a new Tuple containing only the given slots.
func (t *Tuple) Project(slots []Slot) *Tuple {
	out := &Tuple{bound: make(map[Slot]store.EncodedTerm, len(slots))}
	for _, s := range slots {
		if v, ok := t.bound[s]; ok {
			out.bound[s] = v
		}
	}
	return out
}
