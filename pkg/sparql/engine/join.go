package engine

import "github.com/aleksaelezovic/trigo/pkg/sparql/algebra"

// keyOf projects tuple onto keys; used as the hash-multimap key for Join/
// LeftJoin/Minus. Tuples missing a key slot (shouldn't happen for Join's own
// contract, since Keys are "known bound on both sides") still hash
// deterministically via the zero EncodedTerm placeholder.
func keyOf(tuple *algebra.Tuple, keys []algebra.Slot) string {
	if len(keys) == 0 {
		return ""
	}
	b := make([]byte, 0, len(keys)*17)
	for _, k := range keys {
		enc, ok := tuple.Get(k)
		b = append(b, byte(k), byte(k>>8))
		if ok {
			b = append(b, enc[:]...)
		}
	}
	return string(b)
}

// compileJoin implements spec 4.6's hash build-left probe-right Join: an
// empty key set degenerates to a cartesian product (every left tuple times
// every right tuple), since keyOf then returns the same "" key for
// everything and the bucket holds the whole left side.
func (e *Engine) compileJoin(j *algebra.Join, input *algebra.Tuple) (Iterator, error) {
	leftIt, err := e.Compile(j.Left, input)
	if err != nil {
		return nil, err
	}
	left, buildErr := drain(leftIt)
	if buildErr != nil {
		return &errIterator{err: buildErr}, nil
	}
	buckets := map[string][]*algebra.Tuple{}
	for _, t := range left {
		k := keyOf(t, j.Keys)
		buckets[k] = append(buckets[k], t)
	}

	rightIt, err := e.Compile(j.Right, input)
	if err != nil {
		return nil, err
	}
	return &joinIterator{right: rightIt, keys: j.Keys, buckets: buckets}, nil
}

type joinIterator struct {
	right   Iterator
	keys    []algebra.Slot
	buckets map[string][]*algebra.Tuple
	bucket  []*algebra.Tuple
	rightT  *algebra.Tuple
	bi      int
	current *algebra.Tuple
	err     error
}

func (it *joinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		for it.bi < len(it.bucket) {
			cand := it.bucket[it.bi]
			it.bi++
			if cand.Compatible(it.rightT) {
				it.current = cand.Combine(it.rightT)
				return true
			}
		}
		if !it.right.Next() {
			it.err = it.right.Err()
			return false
		}
		it.rightT = it.right.Tuple()
		it.bucket = it.buckets[keyOf(it.rightT, it.keys)]
		it.bi = 0
	}
}

func (it *joinIterator) Tuple() *algebra.Tuple { return it.current }
func (it *joinIterator) Err() error            { return it.err }
func (it *joinIterator) Close() error          { return it.right.Close() }

// compileLeftJoin implements OPTIONAL: build the right side (keyed the same
// way as Join), then for each left tuple emit every filter-passing
// combination, or the lone left tuple if none pass.
func (e *Engine) compileLeftJoin(lj *algebra.LeftJoin, input *algebra.Tuple) (Iterator, error) {
	rightIt, err := e.Compile(lj.Right, input)
	if err != nil {
		return nil, err
	}
	right, buildErr := drain(rightIt)
	if buildErr != nil {
		return &errIterator{err: buildErr}, nil
	}
	buckets := map[string][]*algebra.Tuple{}
	for _, t := range right {
		k := keyOf(t, lj.Keys)
		buckets[k] = append(buckets[k], t)
	}
	leftIt, err := e.Compile(lj.Left, input)
	if err != nil {
		return nil, err
	}
	return &leftJoinIterator{e: e, left: leftIt, keys: lj.Keys, buckets: buckets, filter: lj.Filter}, nil
}

type leftJoinIterator struct {
	e       *Engine
	left    Iterator
	keys    []algebra.Slot
	buckets map[string][]*algebra.Tuple
	filter  algebra.Expression
	bucket  []*algebra.Tuple
	leftT   *algebra.Tuple
	bi      int
	matched bool
	current *algebra.Tuple
	err     error
}

// passes folds a filter error into "false": spec 4.6 treats a filter error
// the same as a non-passing combination, never as fatal here.
func (it *leftJoinIterator) passes(candidate *algebra.Tuple) bool {
	if it.filter == nil {
		return true
	}
	ok, err := it.e.expr.EBV(it.filter, candidate)
	if err != nil {
		return false
	}
	return ok
}

func (it *leftJoinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		for it.bi < len(it.bucket) {
			cand := it.bucket[it.bi]
			it.bi++
			if !it.leftT.Compatible(cand) {
				continue
			}
			combined := it.leftT.Combine(cand)
			if it.passes(combined) {
				it.matched = true
				it.current = combined
				return true
			}
		}
		if it.leftT != nil && !it.matched {
			it.matched = true // guards against re-firing the fallback
			it.current = it.leftT
			return true
		}
		if !it.left.Next() {
			it.err = it.left.Err()
			return false
		}
		it.leftT = it.left.Tuple()
		it.bucket = it.buckets[keyOf(it.leftT, it.keys)]
		it.bi = 0
		it.matched = false
	}
}

func (it *leftJoinIterator) Tuple() *algebra.Tuple { return it.current }
func (it *leftJoinIterator) Err() error            { return it.err }
func (it *leftJoinIterator) Close() error          { return it.left.Close() }

// compileMinus implements spec 4.6: build a set of right tuples, emit left
// tuples not compatible-and-not-disjoint with any of them. Errors on the
// right side are suppressed per SPARQL's MINUS semantics (a non-matching
// MINUS clause should not abort the whole query); errors on the left pass
// through.
func (e *Engine) compileMinus(m *algebra.Minus, input *algebra.Tuple) (Iterator, error) {
	var right []*algebra.Tuple
	if rightIt, err := e.Compile(m.Right, input); err == nil {
		right, _ = drain(rightIt) // right-side errors are suppressed, not surfaced
	}
	leftIt, err := e.Compile(m.Left, input)
	if err != nil {
		return nil, err
	}
	return &minusIterator{left: leftIt, right: right}, nil
}

type minusIterator struct {
	left    Iterator
	right   []*algebra.Tuple
	current *algebra.Tuple
	err     error
}

func (it *minusIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.left.Next() {
		cand := it.left.Tuple()
		excluded := false
		for _, r := range it.right {
			if cand.CompatibleAndNotDisjoint(r) {
				excluded = true
				break
			}
		}
		if !excluded {
			it.current = cand
			return true
		}
	}
	it.err = it.left.Err()
	return false
}

func (it *minusIterator) Tuple() *algebra.Tuple { return it.current }
func (it *minusIterator) Err() error            { return it.err }
func (it *minusIterator) Close() error          { return it.left.Close() }

// compileUnion re-runs every child with the same input tuple and
// concatenates their output, in plan order (spec 5: "across Union children,
// order is the concatenation of children in plan order").
func (e *Engine) compileUnion(u *algebra.Union, input *algebra.Tuple) (Iterator, error) {
	return &unionIterator{e: e, children: u.Children, input: input, idx: -1}, nil
}

type unionIterator struct {
	e        *Engine
	children []algebra.GraphPattern
	input    *algebra.Tuple
	idx      int
	current  Iterator
	err      error
}

func (it *unionIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.current != nil {
			if it.current.Next() {
				return true
			}
			if err := it.current.Err(); err != nil {
				it.err = err
				return false
			}
			_ = it.current.Close()
			it.current = nil
		}
		it.idx++
		if it.idx >= len(it.children) {
			return false
		}
		child, err := it.e.Compile(it.children[it.idx], it.input)
		if err != nil {
			it.err = err
			return false
		}
		it.current = child
	}
}

func (it *unionIterator) Tuple() *algebra.Tuple { return it.current.Tuple() }
func (it *unionIterator) Err() error            { return it.err }
func (it *unionIterator) Close() error {
	if it.current != nil {
		return it.current.Close()
	}
	return nil
}

// compileLateral implements the dependent join of spec 4.6: for each left
// tuple, compile Right with that tuple as its initial binding, concatenating
// every result.
func (e *Engine) compileLateral(l *algebra.Lateral, input *algebra.Tuple) (Iterator, error) {
	if flj, ok := isForLoopLeftJoinShape(l); ok {
		return e.compileForLoopLeftJoin(flj, input)
	}
	leftIt, err := e.Compile(l.Left, input)
	if err != nil {
		return nil, err
	}
	return &lateralIterator{e: e, left: leftIt, right: l.Right}, nil
}

// isForLoopLeftJoinShape recognizes Lateral(LeftJoin(EmptySingleton, right))
// -- spec 4.6's special case, compiled instead as a ForLoopLeftJoin so the
// "lone left tuple on no match" fallback applies per iteration rather than
// once for the whole Lateral.
func isForLoopLeftJoinShape(l *algebra.Lateral) (*algebra.ForLoopLeftJoin, bool) {
	lj, ok := l.Right.(*algebra.LeftJoin)
	if !ok {
		return nil, false
	}
	values, ok := lj.Left.(*algebra.Values)
	if !ok || len(values.Rows) != 1 || values.Rows[0].Len() != 0 {
		return nil, false
	}
	return &algebra.ForLoopLeftJoin{Left: l.Left, Right: lj.Right, Filter: lj.Filter}, true
}

type lateralIterator struct {
	e       *Engine
	left    Iterator
	right   algebra.GraphPattern
	leftT   *algebra.Tuple
	current Iterator
	err     error
}

func (it *lateralIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.current != nil {
			if it.current.Next() {
				return true
			}
			if err := it.current.Err(); err != nil {
				it.err = err
				return false
			}
			_ = it.current.Close()
			it.current = nil
		}
		if !it.left.Next() {
			it.err = it.left.Err()
			return false
		}
		it.leftT = it.left.Tuple()
		child, err := it.e.Compile(it.right, it.leftT)
		if err != nil {
			it.err = err
			return false
		}
		it.current = child
	}
}

func (it *lateralIterator) Tuple() *algebra.Tuple { return it.current.Tuple() }
func (it *lateralIterator) Err() error            { return it.err }
func (it *lateralIterator) Close() error {
	if it.current != nil {
		_ = it.current.Close()
	}
	return it.left.Close()
}

// compileForLoopLeftJoin implements spec 4.6's special case directly: for
// each left tuple, yield every Filter-passing combination with Right, or the
// lone left tuple alone if none pass.
func (e *Engine) compileForLoopLeftJoin(f *algebra.ForLoopLeftJoin, input *algebra.Tuple) (Iterator, error) {
	leftIt, err := e.Compile(f.Left, input)
	if err != nil {
		return nil, err
	}
	return &forLoopLeftJoinIterator{e: e, left: leftIt, right: f.Right, filter: f.Filter}, nil
}

type forLoopLeftJoinIterator struct {
	e       *Engine
	left    Iterator
	right   algebra.GraphPattern
	filter  algebra.Expression
	leftT   *algebra.Tuple
	current Iterator
	matched bool
	out     *algebra.Tuple
	err     error
}

func (it *forLoopLeftJoinIterator) passes(candidate *algebra.Tuple) bool {
	if it.filter == nil {
		return true
	}
	ok, err := it.e.expr.EBV(it.filter, candidate)
	if err != nil {
		return false
	}
	return ok
}

func (it *forLoopLeftJoinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.current != nil {
			for it.current.Next() {
				cand := it.current.Tuple()
				if it.passes(cand) {
					it.matched = true
					it.out = cand
					return true
				}
			}
			if err := it.current.Err(); err != nil {
				it.err = err
				return false
			}
			_ = it.current.Close()
			fellBack := !it.matched
			it.current = nil
			if fellBack {
				it.out = it.leftT
				return true
			}
		}
		if !it.left.Next() {
			it.err = it.left.Err()
			return false
		}
		it.leftT = it.left.Tuple()
		it.matched = false
		child, err := it.e.Compile(it.right, it.leftT)
		if err != nil {
			it.err = err
			return false
		}
		it.current = child
	}
}

func (it *forLoopLeftJoinIterator) Tuple() *algebra.Tuple { return it.out }
func (it *forLoopLeftJoinIterator) Err() error            { return it.err }
func (it *forLoopLeftJoinIterator) Close() error {
	if it.current != nil {
		_ = it.current.Close()
	}
	return it.left.Close()
}
