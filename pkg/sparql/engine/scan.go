package engine

import (
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// compileValues filters the materialized Rows down to those compatible with
// input, combining each surviving row with input (spec 4.6: "per call
// filters those compatible with the input tuple").
func (e *Engine) compileValues(v *algebra.Values, input *algebra.Tuple) Iterator {
	out := make([]*algebra.Tuple, 0, len(v.Rows))
	for _, row := range v.Rows {
		if row.Compatible(input) {
			out = append(out, row.Combine(input))
		}
	}
	return &sliceIterator{tuples: out}
}

// patternVar is a throwaway store.Variable used to route an unbound
// QuadPattern/PathScan position through C3/C2; its name never escapes this
// package, since binding is reconciled against algebra.Slot afterward.
var patternVar = store.NewVariable("_")

// resolveTerm decodes term's bound/slot-from-input value to an rdf.Term, or
// reports that the position is still free (to be bound from the match).
func (e *Engine) resolveTerm(pt algebra.PatternTerm, input *algebra.Tuple) (term rdf.Term, free bool, err error) {
	if pt.AnyName {
		return nil, false, nil
	}
	if !pt.IsSlot {
		t, derr := e.decode(*pt.Bound)
		return t, false, derr
	}
	if enc, ok := input.Get(pt.Slot); ok {
		t, derr := e.decode(enc)
		return t, false, derr
	}
	return nil, true, nil
}

func (e *Engine) compileQuadPattern(q *algebra.QuadPattern, input *algebra.Tuple) (Iterator, error) {
	pattern := &store.Pattern{}
	free := map[string]bool{}

	assign := func(pos *any, pt algebra.PatternTerm, name string) error {
		term, isFree, err := e.resolveTerm(pt, input)
		if err != nil {
			return err
		}
		if isFree {
			*pos = patternVar
			free[name] = true
		} else if term != nil {
			*pos = term
		}
		return nil
	}
	if err := assign(&pattern.Subject, q.Subject, "s"); err != nil {
		return nil, err
	}
	if err := assign(&pattern.Predicate, q.Predicate, "p"); err != nil {
		return nil, err
	}
	if err := assign(&pattern.Object, q.Object, "o"); err != nil {
		return nil, err
	}
	if q.Graph.IsSlot {
		if err := assign(&pattern.Graph, q.Graph, "g"); err != nil {
			return nil, err
		}
	} else if !q.Graph.AnyName {
		term, _, err := e.resolveTerm(q.Graph, input)
		if err != nil {
			return nil, err
		}
		pattern.Graph = term
	}

	qi, err := e.view.QuadsForPattern(pattern)
	if err != nil {
		return nil, err
	}
	return &quadPatternIterator{e: e, q: q, input: input, quadIter: qi}, nil
}

type quadPatternIterator struct {
	e        *Engine
	q        *algebra.QuadPattern
	input    *algebra.Tuple
	quadIter store.QuadIterator
	current  *algebra.Tuple
	err      error
}

// bindFromQuad applies one quad's terms onto base, checking that repeated
// variables (the same Slot in more than one position) agree, mirroring the
// teacher's scanIterator consistency check generalized to EncodedTerm.
func (e *Engine) bindFromQuad(base *algebra.Tuple, positions []struct {
	pt   algebra.PatternTerm
	term rdf.Term
}) (*algebra.Tuple, error) {
	out := base
	for _, pos := range positions {
		if !pos.pt.IsSlot {
			continue
		}
		if _, ok := base.Get(pos.pt.Slot); ok {
			continue // already bound from input; resolveTerm already constrained the scan to it
		}
		enc, err := e.encode(pos.term)
		if err != nil {
			return nil, err
		}
		if existing, ok := out.Get(pos.pt.Slot); ok {
			if existing != enc {
				return nil, nil
			}
			continue
		}
		out = out.With(pos.pt.Slot, enc)
	}
	return out, nil
}

func (it *quadPatternIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.quadIter.Next() {
		quad, err := it.quadIter.Quad()
		if err != nil {
			it.err = err
			return false
		}
		positions := []struct {
			pt   algebra.PatternTerm
			term rdf.Term
		}{
			{it.q.Subject, quad.Subject},
			{it.q.Predicate, quad.Predicate},
			{it.q.Object, quad.Object},
		}
		if it.q.Graph.IsSlot {
			positions = append(positions, struct {
				pt   algebra.PatternTerm
				term rdf.Term
			}{it.q.Graph, quad.Graph})
		}
		bound, err := it.e.bindFromQuad(it.input, positions)
		if err != nil {
			it.err = err
			return false
		}
		if bound == nil {
			continue // repeated-variable conflict; try the next candidate quad
		}
		it.current = bound
		return true
	}
	return false
}

func (it *quadPatternIterator) Tuple() *algebra.Tuple { return it.current }
func (it *quadPatternIterator) Err() error            { return it.err }
func (it *quadPatternIterator) Close() error          { return it.quadIter.Close() }

// compilePathScan routes to one of path.Evaluator's six binding-mode entry
// points per spec 4.5, choosing by which of subject/object/graph are bound
// once input's own bindings are applied. The two combinations the original
// evaluator leaves to its caller (graph bound but neither endpoint bound,
// and nothing at all bound) are resolved here by enumerating candidate
// subjects via a full scan and delegating per-candidate -- a documented
// fallback for what is, in practice, a rare path-query shape.
func (e *Engine) compilePathScan(p *algebra.PathScan, input *algebra.Tuple) (Iterator, error) {
	subjTerm, subjFree, err := e.resolveTerm(p.Subject, input)
	if err != nil {
		return nil, err
	}
	objTerm, objFree, err := e.resolveTerm(p.Object, input)
	if err != nil {
		return nil, err
	}
	graphTerm, graphFree, err := e.resolveTerm(p.Graph, input)
	if err != nil {
		return nil, err
	}

	var subjEnc, objEnc, graphEnc store.EncodedTerm
	if !subjFree {
		if subjEnc, err = e.encode(subjTerm); err != nil {
			return nil, err
		}
	}
	if !objFree {
		if objEnc, err = e.encode(objTerm); err != nil {
			return nil, err
		}
	}
	if !graphFree && !p.Graph.AnyName {
		if graphEnc, err = e.encode(graphTerm); err != nil {
			return nil, err
		}
	}
	if p.Graph.AnyName {
		if graphEnc, err = e.encode(rdf.NewDefaultGraph()); err != nil {
			return nil, err
		}
		graphFree = false
	}

	var out []*algebra.Tuple
	switch {
	case !subjFree && !objFree && !graphFree:
		ok, err := e.pathEval.EvalClosedInGraph(p.Path, subjEnc, objEnc, graphEnc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, input)
		}
	case !subjFree && !objFree && graphFree:
		graphs, err := e.pathEval.EvalClosedInUnknownGraph(p.Path, subjEnc, objEnc)
		if err != nil {
			return nil, err
		}
		for _, g := range graphs {
			out = append(out, input.With(p.Graph.Slot, g))
		}
	case !subjFree && objFree && !graphFree:
		ends, err := e.pathEval.EvalFromInGraph(p.Path, subjEnc, graphEnc)
		if err != nil {
			return nil, err
		}
		for _, end := range ends {
			out = append(out, input.With(p.Object.Slot, end))
		}
	case subjFree && !objFree && !graphFree:
		starts, err := e.pathEval.EvalToInGraph(p.Path, objEnc, graphEnc)
		if err != nil {
			return nil, err
		}
		for _, start := range starts {
			out = append(out, input.With(p.Subject.Slot, start))
		}
	case !subjFree && objFree && graphFree:
		pairs, err := e.pathEval.EvalFromInUnknownGraph(p.Path, subjEnc)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			out = append(out, input.With(p.Object.Slot, pair.Term).With(p.Graph.Slot, pair.Graph))
		}
	case subjFree && !objFree && graphFree:
		pairs, err := e.pathEval.EvalToInUnknownGraph(p.Path, objEnc)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			out = append(out, input.With(p.Subject.Slot, pair.Term).With(p.Graph.Slot, pair.Graph))
		}
	default:
		// Both endpoints free: enumerate every candidate subject visible in
		// scope, then reuse EvalFromIn(Graph|UnknownGraph) per candidate.
		subjects, err := e.candidateSubjects(graphEnc, graphFree)
		if err != nil {
			return nil, err
		}
		for _, s := range subjects {
			if !graphFree {
				ends, err := e.pathEval.EvalFromInGraph(p.Path, s, graphEnc)
				if err != nil {
					return nil, err
				}
				for _, end := range ends {
					out = append(out, input.With(p.Subject.Slot, s).With(p.Object.Slot, end))
				}
				continue
			}
			pairs, err := e.pathEval.EvalFromInUnknownGraph(p.Path, s)
			if err != nil {
				return nil, err
			}
			for _, pair := range pairs {
				out = append(out, input.With(p.Subject.Slot, s).With(p.Object.Slot, pair.Term).With(p.Graph.Slot, pair.Graph))
			}
		}
	}
	return &sliceIterator{tuples: out}, nil
}

// candidateSubjects enumerates the distinct subjects visible to a
// fully-open path query: within one bound graph if graphFree is false,
// across every visible graph (plus the default graph) otherwise.
func (e *Engine) candidateSubjects(graphEnc store.EncodedTerm, graphFree bool) ([]store.EncodedTerm, error) {
	seen := map[store.EncodedTerm]bool{}
	var out []store.EncodedTerm
	scan := func(graph *rdf.Term) error {
		pattern := &store.Pattern{Subject: patternVar, Predicate: patternVar, Object: patternVar}
		if graph != nil {
			pattern.Graph = *graph
		}
		qi, err := e.view.QuadsForPattern(pattern)
		if err != nil {
			return err
		}
		defer qi.Close()
		for qi.Next() {
			quad, err := qi.Quad()
			if err != nil {
				return err
			}
			enc, err := e.encode(quad.Subject)
			if err != nil {
				return err
			}
			if !seen[enc] {
				seen[enc] = true
				out = append(out, enc)
			}
		}
		return qi.Close()
	}
	if !graphFree {
		g, err := e.decode(graphEnc)
		if err != nil {
			return nil, err
		}
		if err := scan(&g); err != nil {
			return nil, err
		}
		return out, nil
	}
	dg := rdf.Term(rdf.NewDefaultGraph())
	if err := scan(&dg); err != nil {
		return nil, err
	}
	graphs, err := e.view.NamedGraphs()
	if err != nil {
		return nil, err
	}
	for _, g := range graphs {
		gg := g
		if err := scan(&gg); err != nil {
			return nil, err
		}
	}
	return out, nil
}
