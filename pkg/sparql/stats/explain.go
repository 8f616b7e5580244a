package stats

import (
	"time"

	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

// Node is one EXPLAIN tree entry (spec 4.8/§2: "a JSON node tree {name,
// children[, \"number of results\", \"duration in seconds\"]}"). Count and
// Duration stay nil until a StatsIterator built over this node has run to
// completion -- EXPLAIN on an unrun plan is just the shape, no numbers.
type Node struct {
	Name     string   `json:"name"`
	Children []*Node  `json:"children,omitempty"`
	Count    *int64   `json:"number of results,omitempty"`
	Duration *float64 `json:"duration in seconds,omitempty"`

	count    int64
	duration time.Duration
}

func newNode(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// record folds one Next() call's outcome into this node's running totals.
func (n *Node) record(matched bool, elapsed time.Duration) {
	n.duration += elapsed
	if matched {
		n.count++
	}
}

// finalize freezes the running totals into the JSON-visible pointer fields.
// Safe to call more than once (Close may be called by both the caller and a
// deferred cleanup); each call publishes the node's current totals, so a
// repeated call after the operator has finished re-publishes the same numbers.
func (n *Node) finalize() {
	count := n.count
	n.Count = &count
	secs := n.duration.Seconds()
	n.Duration = &secs
}

// Describe builds the static EXPLAIN shape for pattern -- names and nesting
// only, no counts -- by walking algebra.GraphPattern the same way
// engine.Engine's compile dispatch does, child-before-parent, so a
// Recorder built over the result lines up with the order Compile actually
// wraps each node's Iterator.
func Describe(pattern algebra.GraphPattern) *Node {
	switch p := pattern.(type) {
	case *algebra.Values:
		return newNode("Values")
	case *algebra.QuadPattern:
		return newNode("QuadPattern")
	case *algebra.PathScan:
		return newNode("PathScan")
	case *algebra.Join:
		return newNode("Join", Describe(p.Left), Describe(p.Right))
	case *algebra.LeftJoin:
		return newNode("LeftJoin", Describe(p.Left), Describe(p.Right))
	case *algebra.Minus:
		return newNode("Minus", Describe(p.Left), Describe(p.Right))
	case *algebra.Union:
		children := make([]*Node, len(p.Children))
		for i, c := range p.Children {
			children[i] = Describe(c)
		}
		return newNode("Union", children...)
	case *algebra.Lateral:
		return newNode("Lateral", Describe(p.Left), Describe(p.Right))
	case *algebra.ForLoopLeftJoin:
		return newNode("ForLoopLeftJoin", Describe(p.Left), Describe(p.Right))
	case *algebra.Filter:
		return newNode("Filter", Describe(p.Child))
	case *algebra.Extend:
		return newNode("Extend", Describe(p.Child))
	case *algebra.OrderBy:
		return newNode("OrderBy", Describe(p.Child))
	case *algebra.Distinct:
		return newNode("Distinct", Describe(p.Child))
	case *algebra.Reduced:
		return newNode("Reduced", Describe(p.Child))
	case *algebra.Slice:
		return newNode("Slice", Describe(p.Child))
	case *algebra.Project:
		return newNode("Project", Describe(p.Child))
	case *algebra.Group:
		return newNode("Group", Describe(p.Child))
	case *algebra.Service:
		return newNode("Service", Describe(p.Inner))
	default:
		return newNode("Unknown")
	}
}
