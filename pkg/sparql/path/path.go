// Package path implements C5, the PathEvaluator: evaluating a compiled
// property-path tree against the dataset in any of six binding modes,
// grounded on original_source/lib/spareval/src/eval.rs's PathEvaluator.
package path

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/dataset"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// Pair is a (term, graph) result, used by the unknown-graph entry points.
type Pair struct {
	Term  store.EncodedTerm
	Graph store.EncodedTerm
}

// Evaluator runs property-path queries against one dataset View.
type Evaluator struct {
	view     *dataset.View
	interner store.Interner
	enc      *store.Encoder
	dec      *store.Decoder
}

func New(view *dataset.View, interner store.Interner) *Evaluator {
	return &Evaluator{view: view, interner: interner, enc: store.NewEncoder(), dec: store.NewDecoder()}
}

func (e *Evaluator) decode(enc store.EncodedTerm) (rdf.Term, error) {
	return e.dec.DecodeTerm(e.interner, enc)
}

func (e *Evaluator) encode(term rdf.Term) (store.EncodedTerm, error) {
	return e.enc.EncodeTerm(e.interner, term)
}

// EvalClosedInGraph answers whether start and end are connected by path
// within graph (the "start, end, graph known" binding mode).
func (e *Evaluator) EvalClosedInGraph(p algebra.Path, start, end, graph store.EncodedTerm) (bool, error) {
	s, err := e.decode(start)
	if err != nil {
		return false, err
	}
	en, err := e.decode(end)
	if err != nil {
		return false, err
	}
	g, err := e.decode(graph)
	if err != nil {
		return false, err
	}
	return e.closedInGraph(p, s, en, g)
}

// EvalFromInGraph returns every node reachable from start via path within
// graph (the "start, graph known" binding mode).
func (e *Evaluator) EvalFromInGraph(p algebra.Path, start, graph store.EncodedTerm) ([]store.EncodedTerm, error) {
	s, err := e.decode(start)
	if err != nil {
		return nil, err
	}
	g, err := e.decode(graph)
	if err != nil {
		return nil, err
	}
	ends, err := e.stepFromInGraph(p, s, g)
	if err != nil {
		return nil, err
	}
	return e.encodeAll(ends)
}

// EvalToInGraph returns every node that reaches end via path within graph
// (the "end, graph known" binding mode).
func (e *Evaluator) EvalToInGraph(p algebra.Path, end, graph store.EncodedTerm) ([]store.EncodedTerm, error) {
	en, err := e.decode(end)
	if err != nil {
		return nil, err
	}
	g, err := e.decode(graph)
	if err != nil {
		return nil, err
	}
	starts, err := e.stepToInGraph(p, en, g)
	if err != nil {
		return nil, err
	}
	return e.encodeAll(starts)
}

// EvalClosedInUnknownGraph returns every graph in which start and end are
// connected by path (the "start, end known" binding mode).
func (e *Evaluator) EvalClosedInUnknownGraph(p algebra.Path, start, end store.EncodedTerm) ([]store.EncodedTerm, error) {
	s, err := e.decode(start)
	if err != nil {
		return nil, err
	}
	en, err := e.decode(end)
	if err != nil {
		return nil, err
	}
	graphs, err := e.view.NamedGraphs()
	if err != nil {
		return nil, err
	}
	var out []rdf.Term
	for _, g := range graphs {
		ok, err := e.closedInGraph(p, s, en, g)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, g)
		}
	}
	return e.encodeAll(out)
}

// EvalFromInUnknownGraph returns every (end, graph) pair reachable from
// start via path (the "start known" binding mode).
func (e *Evaluator) EvalFromInUnknownGraph(p algebra.Path, start store.EncodedTerm) ([]Pair, error) {
	s, err := e.decode(start)
	if err != nil {
		return nil, err
	}
	graphs, err := e.view.NamedGraphs()
	if err != nil {
		return nil, err
	}
	var out []Pair
	for _, g := range graphs {
		ends, err := e.stepFromInGraph(p, s, g)
		if err != nil {
			return nil, err
		}
		gEnc, err := e.encode(g)
		if err != nil {
			return nil, err
		}
		for _, end := range ends {
			endEnc, err := e.encode(end)
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Term: endEnc, Graph: gEnc})
		}
	}
	return out, nil
}

// EvalToInUnknownGraph returns every (start, graph) pair that reaches end
// via path (the "end known" binding mode).
func (e *Evaluator) EvalToInUnknownGraph(p algebra.Path, end store.EncodedTerm) ([]Pair, error) {
	en, err := e.decode(end)
	if err != nil {
		return nil, err
	}
	graphs, err := e.view.NamedGraphs()
	if err != nil {
		return nil, err
	}
	var out []Pair
	for _, g := range graphs {
		starts, err := e.stepToInGraph(p, en, g)
		if err != nil {
			return nil, err
		}
		gEnc, err := e.encode(g)
		if err != nil {
			return nil, err
		}
		for _, start := range starts {
			startEnc, err := e.encode(start)
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Term: startEnc, Graph: gEnc})
		}
	}
	return out, nil
}

func (e *Evaluator) encodeAll(terms []rdf.Term) ([]store.EncodedTerm, error) {
	out := make([]store.EncodedTerm, 0, len(terms))
	for _, t := range terms {
		enc, err := e.encode(t)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// closedInGraph implements §4.5's recursive bool algorithm.
func (e *Evaluator) closedInGraph(p algebra.Path, start, end, graph rdf.Term) (bool, error) {
	switch path := p.(type) {
	case *algebra.PathPredicate:
		pred, err := e.decode(path.Predicate)
		if err != nil {
			return false, err
		}
		return e.quadExists(start, pred, end, graph)
	case *algebra.PathReverse:
		return e.closedInGraph(path.Inner, end, start, graph)
	case *algebra.PathSequence:
		mids, err := e.stepFromInGraph(path.Left, start, graph)
		if err != nil {
			return false, err
		}
		for _, m := range mids {
			ok, err := e.closedInGraph(path.Right, m, end, graph)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *algebra.PathAlternative:
		ok, err := e.closedInGraph(path.Left, start, end, graph)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		return e.closedInGraph(path.Right, start, end, graph)
	case *algebra.PathZeroOrMore:
		if start.Equals(end) {
			return e.isSubjectOrObjectInGraph(start, graph)
		}
		return e.reachableBFS(path.Inner, start, end, graph)
	case *algebra.PathOneOrMore:
		return e.reachableBFS(path.Inner, start, end, graph)
	case *algebra.PathZeroOrOne:
		if start.Equals(end) {
			return e.isSubjectOrObjectInGraph(start, graph)
		}
		return e.closedInGraph(path.Inner, start, end, graph)
	case *algebra.PathNegatedPropertySet:
		return e.quadExistsNegated(start, path.Set, end, graph)
	default:
		return false, fmt.Errorf("path: unhandled node %T", p)
	}
}

// stepFromInGraph returns the one-hop-or-recursive set of nodes reachable
// from start via p, within graph.
func (e *Evaluator) stepFromInGraph(p algebra.Path, start, graph rdf.Term) ([]rdf.Term, error) {
	switch path := p.(type) {
	case *algebra.PathPredicate:
		pred, err := e.decode(path.Predicate)
		if err != nil {
			return nil, err
		}
		return e.scanObjects(start, pred, graph)
	case *algebra.PathReverse:
		return e.stepToInGraph(path.Inner, start, graph)
	case *algebra.PathSequence:
		mids, err := e.stepFromInGraph(path.Left, start, graph)
		if err != nil {
			return nil, err
		}
		var out []rdf.Term
		for _, m := range mids {
			ends, err := e.stepFromInGraph(path.Right, m, graph)
			if err != nil {
				return nil, err
			}
			out = append(out, ends...)
		}
		return dedupTerms(out), nil
	case *algebra.PathAlternative:
		a, err := e.stepFromInGraph(path.Left, start, graph)
		if err != nil {
			return nil, err
		}
		b, err := e.stepFromInGraph(path.Right, start, graph)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append(a, b...)), nil
	case *algebra.PathZeroOrMore:
		return e.transitiveClosureFrom(path.Inner, start, graph, true)
	case *algebra.PathOneOrMore:
		return e.transitiveClosureFrom(path.Inner, start, graph, false)
	case *algebra.PathZeroOrOne:
		ends, err := e.stepFromInGraph(path.Inner, start, graph)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append([]rdf.Term{start}, ends...)), nil
	case *algebra.PathNegatedPropertySet:
		return e.scanObjectsNegated(start, path.Set, graph)
	default:
		return nil, fmt.Errorf("path: unhandled node %T", p)
	}
}

// stepToInGraph returns the one-hop-or-recursive set of nodes that reach
// end via p, within graph -- the mirror image of stepFromInGraph.
func (e *Evaluator) stepToInGraph(p algebra.Path, end, graph rdf.Term) ([]rdf.Term, error) {
	switch path := p.(type) {
	case *algebra.PathPredicate:
		pred, err := e.decode(path.Predicate)
		if err != nil {
			return nil, err
		}
		return e.scanSubjects(pred, end, graph)
	case *algebra.PathReverse:
		return e.stepFromInGraph(path.Inner, end, graph)
	case *algebra.PathSequence:
		mids, err := e.stepToInGraph(path.Right, end, graph)
		if err != nil {
			return nil, err
		}
		var out []rdf.Term
		for _, m := range mids {
			starts, err := e.stepToInGraph(path.Left, m, graph)
			if err != nil {
				return nil, err
			}
			out = append(out, starts...)
		}
		return dedupTerms(out), nil
	case *algebra.PathAlternative:
		a, err := e.stepToInGraph(path.Left, end, graph)
		if err != nil {
			return nil, err
		}
		b, err := e.stepToInGraph(path.Right, end, graph)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append(a, b...)), nil
	case *algebra.PathZeroOrMore:
		return e.transitiveClosureTo(path.Inner, end, graph, true)
	case *algebra.PathOneOrMore:
		return e.transitiveClosureTo(path.Inner, end, graph, false)
	case *algebra.PathZeroOrOne:
		starts, err := e.stepToInGraph(path.Inner, end, graph)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append([]rdf.Term{end}, starts...)), nil
	case *algebra.PathNegatedPropertySet:
		return e.scanSubjectsNegated(path.Set, end, graph)
	default:
		return nil, fmt.Errorf("path: unhandled node %T", p)
	}
}

// transitiveClosureFrom computes the BFS closure of stepFromInGraph(inner, ...)
// seeded from start, with a visited set for cycle termination (§4.5).
// includeStart controls ZeroOrMore (true) vs OneOrMore (false) membership of
// start itself in the result.
func (e *Evaluator) transitiveClosureFrom(inner algebra.Path, start, graph rdf.Term, includeStart bool) ([]rdf.Term, error) {
	visited := map[string]rdf.Term{}
	var queue []rdf.Term
	if includeStart {
		visited[termKey(start)] = start
	}
	frontier := []rdf.Term{start}
	for len(frontier) > 0 {
		var next []rdf.Term
		for _, node := range frontier {
			hop, err := e.stepFromInGraph(inner, node, graph)
			if err != nil {
				return nil, err
			}
			for _, n := range hop {
				key := termKey(n)
				if _, seen := visited[key]; !seen {
					visited[key] = n
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	for _, v := range visited {
		queue = append(queue, v)
	}
	return queue, nil
}

func (e *Evaluator) transitiveClosureTo(inner algebra.Path, end, graph rdf.Term, includeEnd bool) ([]rdf.Term, error) {
	visited := map[string]rdf.Term{}
	if includeEnd {
		visited[termKey(end)] = end
	}
	frontier := []rdf.Term{end}
	for len(frontier) > 0 {
		var next []rdf.Term
		for _, node := range frontier {
			hop, err := e.stepToInGraph(inner, node, graph)
			if err != nil {
				return nil, err
			}
			for _, n := range hop {
				key := termKey(n)
				if _, seen := visited[key]; !seen {
					visited[key] = n
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	var out []rdf.Term
	for _, v := range visited {
		out = append(out, v)
	}
	return out, nil
}

// reachableBFS is the closed-query counterpart of transitiveClosureFrom:
// stop as soon as end is produced instead of computing the full closure.
func (e *Evaluator) reachableBFS(inner algebra.Path, start, end, graph rdf.Term) (bool, error) {
	visited := map[string]bool{termKey(start): true}
	frontier := []rdf.Term{start}
	for len(frontier) > 0 {
		var next []rdf.Term
		for _, node := range frontier {
			hop, err := e.stepFromInGraph(inner, node, graph)
			if err != nil {
				return false, err
			}
			for _, n := range hop {
				if n.Equals(end) {
					return true, nil
				}
				key := termKey(n)
				if !visited[key] {
					visited[key] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return false, nil
}

func (e *Evaluator) scanObjects(subject, predicate, graph rdf.Term) ([]rdf.Term, error) {
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: subject, Predicate: predicate, Object: store.NewVariable("o"), Graph: graph})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		out = append(out, q.Object)
	}
	return out, nil
}

func (e *Evaluator) scanSubjects(predicate, object, graph rdf.Term) ([]rdf.Term, error) {
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: store.NewVariable("s"), Predicate: predicate, Object: object, Graph: graph})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		out = append(out, q.Subject)
	}
	return out, nil
}

func (e *Evaluator) quadExists(subject, predicate, object, graph rdf.Term) (bool, error) {
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: subject, Predicate: predicate, Object: object, Graph: graph})
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.Next(), nil
}

func (e *Evaluator) isSubjectOrObjectInGraph(term, graph rdf.Term) (bool, error) {
	asSubj, err := e.view.QuadsForPattern(&store.Pattern{Subject: term, Predicate: store.NewVariable("p"), Object: store.NewVariable("o"), Graph: graph})
	if err != nil {
		return false, err
	}
	defer asSubj.Close()
	if asSubj.Next() {
		return true, nil
	}
	asObj, err := e.view.QuadsForPattern(&store.Pattern{Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: term, Graph: graph})
	if err != nil {
		return false, err
	}
	defer asObj.Close()
	return asObj.Next(), nil
}

func (e *Evaluator) decodeSet(set []store.EncodedTerm) ([]rdf.Term, error) {
	out := make([]rdf.Term, 0, len(set))
	for _, enc := range set {
		t, err := e.decode(enc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func containsTerm(set []rdf.Term, term rdf.Term) bool {
	for _, s := range set {
		if s.Equals(term) {
			return true
		}
	}
	return false
}

func (e *Evaluator) scanObjectsNegated(subject rdf.Term, set []store.EncodedTerm, graph rdf.Term) ([]rdf.Term, error) {
	excluded, err := e.decodeSet(set)
	if err != nil {
		return nil, err
	}
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: subject, Predicate: store.NewVariable("p"), Object: store.NewVariable("o"), Graph: graph})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		if !containsTerm(excluded, q.Predicate) {
			out = append(out, q.Object)
		}
	}
	return out, nil
}

func (e *Evaluator) scanSubjectsNegated(set []store.EncodedTerm, object rdf.Term, graph rdf.Term) ([]rdf.Term, error) {
	excluded, err := e.decodeSet(set)
	if err != nil {
		return nil, err
	}
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: object, Graph: graph})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		if !containsTerm(excluded, q.Predicate) {
			out = append(out, q.Subject)
		}
	}
	return out, nil
}

func (e *Evaluator) quadExistsNegated(subject rdf.Term, set []store.EncodedTerm, object rdf.Term, graph rdf.Term) (bool, error) {
	excluded, err := e.decodeSet(set)
	if err != nil {
		return false, err
	}
	it, err := e.view.QuadsForPattern(&store.Pattern{Subject: subject, Predicate: store.NewVariable("p"), Object: object, Graph: graph})
	if err != nil {
		return false, err
	}
	defer it.Close()
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return false, err
		}
		if !containsTerm(excluded, q.Predicate) {
			return true, nil
		}
	}
	return false, nil
}

func dedupTerms(terms []rdf.Term) []rdf.Term {
	seen := map[string]bool{}
	var out []rdf.Term
	for _, t := range terms {
		key := termKey(t)
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}

// termKey gives a hashable identity for a decoded rdf.Term, used by the
// visited sets that make transitive-closure traversal cycle-safe.
func termKey(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "I" + v.IRI
	case *rdf.BlankNode:
		return "B" + v.ID
	case *rdf.Literal:
		return "L" + v.Value + "\x00" + v.Language + "\x00" + datatypeKey(v)
	case *rdf.DefaultGraph:
		return "D"
	default:
		return fmt.Sprintf("%T:%v", t, t)
	}
}

func datatypeKey(l *rdf.Literal) string {
	if l.Datatype == nil {
		return ""
	}
	return l.Datatype.IRI
}
