package stats

import (
	"time"

	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
)

// StatsIterator wraps one compiled node's Iterator, sampling monotonic time
// across every Next() call and incrementing node's count on each yield
// (spec 4.8). Close finalizes node's JSON-visible totals before releasing
// the wrapped iterator.
type StatsIterator struct {
	inner engine.Iterator
	node  *Node
}

func NewStatsIterator(node *Node, inner engine.Iterator) *StatsIterator {
	return &StatsIterator{inner: inner, node: node}
}

func (s *StatsIterator) Next() bool {
	start := time.Now()
	ok := s.inner.Next()
	s.node.record(ok, time.Since(start))
	return ok
}

func (s *StatsIterator) Tuple() *algebra.Tuple { return s.inner.Tuple() }
func (s *StatsIterator) Err() error            { return s.inner.Err() }

func (s *StatsIterator) Close() error {
	s.node.finalize()
	return s.inner.Close()
}

// Recorder assigns each Engine.Compile node, in the child-before-parent
// order Describe's tree and engine's compile dispatch both share, to the
// matching *Node of a pre-built EXPLAIN tree -- so a single top-level
// Engine.Compile(pattern, ...) call, instrumented via Hook, produces
// per-node counts and durations for the whole plan.
type Recorder struct {
	queue []*Node
}

// NewRecorder walks root's tree child-before-parent, queuing every node in
// the order Hook's calls will arrive.
func NewRecorder(root *Node) *Recorder {
	r := &Recorder{}
	r.enqueue(root)
	return r
}

func (r *Recorder) enqueue(n *Node) {
	for _, c := range n.Children {
		r.enqueue(c)
	}
	r.queue = append(r.queue, n)
}

// Hook is the engine.InstrumentFunc to install via Engine.SetInstrument.
// Each call consumes the next queued Node; a plan that compiles more nodes
// than Describe produced (a mismatch between the pattern passed to Describe
// and the one passed to Compile) leaves the surplus uninstrumented rather
// than panicking.
func (r *Recorder) Hook() engine.InstrumentFunc {
	return func(name string, it engine.Iterator) engine.Iterator {
		if len(r.queue) == 0 {
			return it
		}
		node := r.queue[0]
		r.queue = r.queue[1:]
		return NewStatsIterator(node, it)
	}
}
