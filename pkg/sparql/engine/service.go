package engine

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
)

// compileService resolves Name to an endpoint identifier, dispatches Inner to
// the registered ServiceHandler, and on any failure either propagates the
// error or, when Silent, passes input through unchanged (spec 4.6).
func (e *Engine) compileService(s *algebra.Service, input *algebra.Tuple) (Iterator, error) {
	it, err := e.resolveService(s, input)
	if err != nil {
		if s.Silent {
			return &sliceIterator{tuples: []*algebra.Tuple{input}}, nil
		}
		return &errIterator{err: err}, nil
	}
	return it, nil
}

func (e *Engine) resolveService(s *algebra.Service, input *algebra.Tuple) (Iterator, error) {
	enc, err := e.expr.Eval(s.Name, input)
	if err != nil {
		return nil, fmt.Errorf("engine: SERVICE name did not evaluate: %w", err)
	}
	term, err := e.decode(enc)
	if err != nil {
		return nil, err
	}
	iri := termIRIOrValue(term)
	handler, ok := e.services[iri]
	if !ok {
		return nil, fmt.Errorf("engine: no SERVICE handler registered for %q", iri)
	}
	return handler(iri, s.Inner, input)
}
