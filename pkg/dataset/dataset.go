// Package dataset applies FROM/FROM NAMED-style dataset restrictions atop a
// QuadStore snapshot, without ever mutating the underlying store.
package dataset

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// View wraps a store.Reader with two optional graph sets, matching §4.3's
// DatasetView semantics:
//   - defaultGraphs == nil: the dataset's default graph is the union of all
//     graphs (named and the store's own default graph), quads returned with
//     their graph name stripped.
//   - defaultGraphs != nil: the default graph is the union of exactly the
//     listed graphs, again returned with graph name stripped.
//   - namedGraphs == nil: every named graph in the store is visible.
//   - namedGraphs != nil: only the listed graphs are visible as named graphs.
//
// A nil slice means "unset"; a non-nil, possibly empty, slice is an explicit
// (possibly vacuous) restriction — mirroring FROM <g> producing a concrete,
// potentially single-element list versus no FROM clause at all.
type View struct {
	reader        *store.Reader
	defaultGraphs []rdf.Term
	namedGraphs   []rdf.Term
}

func New(reader *store.Reader, defaultGraphs, namedGraphs []rdf.Term) *View {
	return &View{reader: reader, defaultGraphs: defaultGraphs, namedGraphs: namedGraphs}
}

// QuadsForPattern routes pattern to the store.Reader, applying the dataset
// restriction implied by pattern.Graph:
//   - nil or *rdf.DefaultGraph: the dataset's default graph.
//   - *store.Variable: GRAPH ?g — every graph this View makes visible, ?g
//     bound to each in turn.
//   - any other bound rdf.Term: that specific named graph, if visible.
func (v *View) QuadsForPattern(pattern *store.Pattern) (store.QuadIterator, error) {
	switch g := pattern.Graph.(type) {
	case nil:
		return v.queryDefaultGraph(pattern)
	case *rdf.DefaultGraph:
		return v.queryDefaultGraph(pattern)
	case *store.Variable:
		return v.queryAnyNamedGraph(pattern)
	default:
		return v.queryNamedGraph(pattern, g.(rdf.Term))
	}
}

// queryDefaultGraph implements §4.3's default-graph rule: absent a FROM
// restriction, the default graph is the union of all graphs (named and the
// store's actual default graph) with quad.Graph stripped to DefaultGraph;
// with a FROM restriction, it is the union of exactly the listed graphs.
func (v *View) queryDefaultGraph(pattern *store.Pattern) (store.QuadIterator, error) {
	if v.defaultGraphs == nil {
		graphs, err := v.allGraphsIncludingDefault()
		if err != nil {
			return nil, err
		}
		return v.unionRewritten(pattern, graphs)
	}
	return v.unionRewritten(pattern, v.defaultGraphs)
}

// queryNamedGraph answers a pattern bound to a specific named graph,
// returning an empty iterator if that graph is excluded by a `named`
// restriction (§4.3: "GRAPH ?g binds ?g only to names in named").
func (v *View) queryNamedGraph(pattern *store.Pattern, graph rdf.Term) (store.QuadIterator, error) {
	if v.namedGraphs != nil && !containsGraph(v.namedGraphs, graph) {
		return &emptyIterator{}, nil
	}
	scoped := *pattern
	scoped.Graph = graph
	return v.reader.Query(&scoped)
}

// queryAnyNamedGraph implements GRAPH ?g: scan every graph this View makes
// visible, binding the graph position in each result to that graph's name.
func (v *View) queryAnyNamedGraph(pattern *store.Pattern) (store.QuadIterator, error) {
	graphs := v.namedGraphs
	if graphs == nil {
		all, err := v.reader.ListGraphs()
		if err != nil {
			return nil, err
		}
		graphs = all
	}

	var iters []store.QuadIterator
	for _, g := range graphs {
		scoped := *pattern
		scoped.Graph = g
		it, err := v.reader.Query(&scoped)
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}
	return &concatIterator{iters: iters}, nil
}

// allGraphsIncludingDefault returns the store's own default graph plus every
// named graph, for the unrestricted "union of all graphs" default-graph case.
func (v *View) allGraphsIncludingDefault() ([]rdf.Term, error) {
	named, err := v.reader.ListGraphs()
	if err != nil {
		return nil, err
	}
	return append([]rdf.Term{rdf.NewDefaultGraph()}, named...), nil
}

// unionRewritten queries pattern against each of graphs in turn and
// concatenates the results with their graph name stripped to DefaultGraph,
// as §4.3 requires for any quad routed through the dataset's default graph.
func (v *View) unionRewritten(pattern *store.Pattern, graphs []rdf.Term) (store.QuadIterator, error) {
	var iters []store.QuadIterator
	for _, g := range graphs {
		scoped := *pattern
		scoped.Graph = g
		it, err := v.reader.Query(&scoped)
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}
	return &rewriteGraphIterator{inner: &concatIterator{iters: iters}, graph: rdf.NewDefaultGraph()}, nil
}

// NamedGraphs returns the graphs visible as GRAPH-addressable, per the
// `named` restriction (or every graph the store knows about if unset).
func (v *View) NamedGraphs() ([]rdf.Term, error) {
	if v.namedGraphs != nil {
		return v.namedGraphs, nil
	}
	return v.reader.ListGraphs()
}

// ContainsGraph reports whether graph is visible as a named graph under this
// View's restriction.
func (v *View) ContainsGraph(graph rdf.Term) (bool, error) {
	if v.namedGraphs != nil {
		return containsGraph(v.namedGraphs, graph), nil
	}
	all, err := v.reader.ListGraphs()
	if err != nil {
		return false, err
	}
	return containsGraph(all, graph), nil
}

func containsGraph(graphs []rdf.Term, target rdf.Term) bool {
	for _, g := range graphs {
		if g.Equals(target) {
			return true
		}
	}
	return false
}

type emptyIterator struct{}

func (*emptyIterator) Next() bool              { return false }
func (*emptyIterator) Quad() (*rdf.Quad, error) { return nil, fmt.Errorf("dataset: no current quad") }
func (*emptyIterator) Close() error             { return nil }

// concatIterator chains a sequence of QuadIterators, advancing to the next
// one once the current is exhausted.
type concatIterator struct {
	iters []store.QuadIterator
	pos   int
}

func (c *concatIterator) Next() bool {
	for c.pos < len(c.iters) {
		if c.iters[c.pos].Next() {
			return true
		}
		c.pos++
	}
	return false
}

func (c *concatIterator) Quad() (*rdf.Quad, error) {
	return c.iters[c.pos].Quad()
}

func (c *concatIterator) Close() error {
	var firstErr error
	for _, it := range c.iters {
		if err := it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rewriteGraphIterator overrides the Graph field of every quad it yields,
// implementing §4.3's "returned with graph_name = DefaultGraph" rule.
type rewriteGraphIterator struct {
	inner store.QuadIterator
	graph rdf.Term
}

func (r *rewriteGraphIterator) Next() bool { return r.inner.Next() }

func (r *rewriteGraphIterator) Quad() (*rdf.Quad, error) {
	q, err := r.inner.Quad()
	if err != nil {
		return nil, err
	}
	return &rdf.Quad{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object, Graph: r.graph}, nil
}

func (r *rewriteGraphIterator) Close() error { return r.inner.Close() }
