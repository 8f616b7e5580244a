package engine

import "github.com/aleksaelezovic/trigo/pkg/sparql/algebra"

// compileFilter wraps Child: passes tuples whose Expr EBV is true, lets
// child errors propagate, and treats a filter-evaluation error itself as
// false (spec 4.6).
func (e *Engine) compileFilter(f *algebra.Filter, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(f.Child, input)
	if err != nil {
		return nil, err
	}
	return &filterIterator{e: e, child: child, expr: f.Expr}, nil
}

type filterIterator struct {
	e    *Engine
	child Iterator
	expr  algebra.Expression
	err   error
}

func (it *filterIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.child.Next() {
		t := it.child.Tuple()
		ok, err := it.e.expr.EBV(it.expr, t)
		if err != nil {
			continue // silent expression error, or fatal -- either way, not a match
		}
		if ok {
			return true
		}
	}
	it.err = it.child.Err()
	return false
}

func (it *filterIterator) Tuple() *algebra.Tuple { return it.child.Tuple() }
func (it *filterIterator) Err() error            { return it.err }
func (it *filterIterator) Close() error          { return it.child.Close() }

// compileExtend implements BIND: evaluate Expr per child tuple, binding Slot
// on success and leaving it unbound on error (spec 4.6: "on None, leave v
// unbound").
func (e *Engine) compileExtend(ex *algebra.Extend, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(ex.Child, input)
	if err != nil {
		return nil, err
	}
	return &extendIterator{e: e, child: child, slot: ex.Slot, expr: ex.Expr}, nil
}

type extendIterator struct {
	e       *Engine
	child   Iterator
	slot    algebra.Slot
	expr    algebra.Expression
	current *algebra.Tuple
	err     error
}

func (it *extendIterator) Next() bool {
	if !it.child.Next() {
		it.err = it.child.Err()
		return false
	}
	t := it.child.Tuple()
	if enc, err := it.e.expr.Eval(it.expr, t); err == nil {
		t = t.With(it.slot, enc)
	}
	it.current = t
	return true
}

func (it *extendIterator) Tuple() *algebra.Tuple { return it.current }
func (it *extendIterator) Err() error            { return it.err }
func (it *extendIterator) Close() error          { return it.child.Close() }

// compileDistinct hash-deduplicates the entire stream, preserving
// first-occurrence order (spec 5).
func (e *Engine) compileDistinct(d *algebra.Distinct, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(d.Child, input)
	if err != nil {
		return nil, err
	}
	return &distinctIterator{child: child, seen: map[string]bool{}, budget: e.memoryBudget}, nil
}

type distinctIterator struct {
	child   Iterator
	seen    map[string]bool
	budget  int
	current *algebra.Tuple
	err     error
}

func tupleKey(t *algebra.Tuple) string {
	slots := t.Slots()
	// Sort slots for a stable, order-independent key; simple insertion sort
	// since slot counts per tuple are small.
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j-1] > slots[j]; j-- {
			slots[j-1], slots[j] = slots[j], slots[j-1]
		}
	}
	b := make([]byte, 0, len(slots)*17)
	for _, s := range slots {
		enc, _ := t.Get(s)
		b = append(b, byte(s), byte(s>>8))
		b = append(b, enc[:]...)
	}
	return string(b)
}

func (it *distinctIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.child.Next() {
		t := it.child.Tuple()
		k := tupleKey(t)
		if it.seen[k] {
			continue
		}
		if it.budget > 0 && len(it.seen) >= it.budget {
			it.err = ErrMemoryBudgetExceeded
			return false
		}
		it.seen[k] = true
		it.current = t
		return true
	}
	it.err = it.child.Err()
	return false
}

func (it *distinctIterator) Tuple() *algebra.Tuple { return it.current }
func (it *distinctIterator) Err() error            { return it.err }
func (it *distinctIterator) Close() error          { return it.child.Close() }

// compileReduced removes only consecutive duplicates (spec 4.6).
func (e *Engine) compileReduced(r *algebra.Reduced, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(r.Child, input)
	if err != nil {
		return nil, err
	}
	return &reducedIterator{child: child}, nil
}

type reducedIterator struct {
	child   Iterator
	lastKey string
	haveLast bool
	current *algebra.Tuple
	err     error
}

func (it *reducedIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.child.Next() {
		t := it.child.Tuple()
		k := tupleKey(t)
		if it.haveLast && k == it.lastKey {
			continue
		}
		it.haveLast = true
		it.lastKey = k
		it.current = t
		return true
	}
	it.err = it.child.Err()
	return false
}

func (it *reducedIterator) Tuple() *algebra.Tuple { return it.current }
func (it *reducedIterator) Err() error            { return it.err }
func (it *reducedIterator) Close() error          { return it.child.Close() }

// compileSlice implements LIMIT/OFFSET: skip Start tuples, then take Length
// (unbounded if !HasLength).
func (e *Engine) compileSlice(s *algebra.Slice, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(s.Child, input)
	if err != nil {
		return nil, err
	}
	return &sliceLimitIterator{child: child, skip: s.Start, length: s.Length, hasLength: s.HasLength}, nil
}

type sliceLimitIterator struct {
	child     Iterator
	skip      int
	length    int
	hasLength bool
	taken     int
	skipped   bool
	current   *algebra.Tuple
	err       error
}

func (it *sliceLimitIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.skipped {
		for i := 0; i < it.skip; i++ {
			if !it.child.Next() {
				it.err = it.child.Err()
				return false
			}
		}
		it.skipped = true
	}
	if it.hasLength && it.taken >= it.length {
		return false
	}
	if !it.child.Next() {
		it.err = it.child.Err()
		return false
	}
	it.taken++
	it.current = it.child.Tuple()
	return true
}

func (it *sliceLimitIterator) Tuple() *algebra.Tuple { return it.current }
func (it *sliceLimitIterator) Err() error            { return it.err }
func (it *sliceLimitIterator) Close() error          { return it.child.Close() }

// compileProject remaps Child's output onto Vars, rejecting tuples that
// would require conflicting bindings on a reused slot (spec 4.6). Since
// Tuple.Project already keeps only the requested slots, "conflicting" here
// can only arise if the same output Slot is asked for twice with
// differing source values, which Project's 1:1 slot model makes
// impossible -- Project is a pure subsetting projection, not a rename.
func (e *Engine) compileProject(p *algebra.Project, input *algebra.Tuple) (Iterator, error) {
	child, err := e.Compile(p.Child, input)
	if err != nil {
		return nil, err
	}
	return &projectIterator{child: child, vars: p.Vars}, nil
}

type projectIterator struct {
	child Iterator
	vars  []algebra.Slot
	err   error
}

func (it *projectIterator) Next() bool {
	if !it.child.Next() {
		it.err = it.child.Err()
		return false
	}
	return true
}

func (it *projectIterator) Tuple() *algebra.Tuple { return it.child.Tuple().Project(it.vars) }
func (it *projectIterator) Err() error            { return it.err }
func (it *projectIterator) Close() error          { return it.child.Close() }
