package store

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Pattern is a quad pattern whose Subject/Predicate/Object/Graph fields are
// either a bound rdf.Term or a *Variable. A nil Graph means "the default
// graph"; use a *Variable to match any graph.
type Pattern struct {
	Subject   any
	Predicate any
	Object    any
	Graph     any
}

// Variable names an unbound position in a Pattern.
type Variable struct{ Name string }

func NewVariable(name string) *Variable { return &Variable{Name: name} }
func (v *Variable) String() string      { return "?" + v.Name }

func isVariable(v any) bool {
	_, ok := v.(*Variable)
	return ok
}

// QuadIterator iterates over quads matching a Pattern.
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Close() error
}

// Query executes pattern against the reader's snapshot, choosing whichever
// of the nine permutation indexes lets the largest bound prefix drive the
// scan -- the routing table of spec.md §4.2.
func (r *Reader) Query(pattern *Pattern) (QuadIterator, error) {
	table, keyOrder := selectIndex(pattern)
	prefix, err := r.buildScanPrefix(pattern, keyOrder)
	if err != nil {
		return nil, err
	}
	it, err := r.txn.Scan(table, prefix, nil)
	if err != nil {
		return nil, NewStorageError("query scan", err)
	}
	return &quadIterator{
		decoder:  r.store.dec,
		interner: r.interner,
		it:       it,
		keyOrder: keyOrder,
	}, nil
}

// selectIndex picks the table whose natural key order has the longest
// bindable prefix for pattern, and the column order (0=S,1=P,2=O,3=G) that
// table's keys are written in.
func selectIndex(pattern *Pattern) (Table, []int) {
	sBound := pattern.Subject != nil && !isVariable(pattern.Subject)
	pBound := pattern.Predicate != nil && !isVariable(pattern.Predicate)
	oBound := pattern.Object != nil && !isVariable(pattern.Object)
	gBound := pattern.Graph != nil && !isVariable(pattern.Graph)

	// A *Variable graph matches every graph: the S/P/O-first named-graph
	// indexes hold every quad, default-graph ones included.
	if isVariable(pattern.Graph) {
		switch {
		case pBound && (oBound || !sBound):
			return TablePOSG, []int{1, 2, 0, 3}
		case oBound:
			return TableOSPG, []int{2, 0, 1, 3}
		default:
			return TableSPOG, []int{0, 1, 2, 3}
		}
	}

	if !gBound {
		switch {
		case sBound && pBound:
			return TableSPO, []int{0, 1, 2}
		case pBound && oBound:
			return TablePOS, []int{1, 2, 0}
		case oBound && sBound:
			return TableOSP, []int{2, 0, 1}
		case sBound:
			return TableSPO, []int{0, 1, 2}
		case pBound:
			return TablePOS, []int{1, 2, 0}
		case oBound:
			return TableOSP, []int{2, 0, 1}
		default:
			return TableSPO, []int{0, 1, 2}
		}
	}

	switch {
	case sBound && pBound:
		return TableGSPO, []int{3, 0, 1, 2}
	case pBound && oBound:
		return TableGPOS, []int{3, 1, 2, 0}
	case oBound && sBound:
		return TableGOSP, []int{3, 2, 0, 1}
	case sBound:
		return TableGSPO, []int{3, 0, 1, 2}
	case pBound:
		return TableGPOS, []int{3, 1, 2, 0}
	case oBound:
		return TableGOSP, []int{3, 2, 0, 1}
	default:
		return TableGSPO, []int{3, 0, 1, 2}
	}
}

func (r *Reader) buildScanPrefix(pattern *Pattern, keyOrder []int) ([]byte, error) {
	positions := make([]any, 4)
	positions[0] = pattern.Subject
	positions[1] = pattern.Predicate
	positions[2] = pattern.Object
	if pattern.Graph != nil {
		positions[3] = pattern.Graph
	} else {
		positions[3] = rdf.NewDefaultGraph()
	}

	var prefix []byte
	for _, idx := range keyOrder {
		term := positions[idx]
		if term == nil || isVariable(term) {
			break
		}
		enc, err := r.EncodeTerm(term.(rdf.Term))
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, enc[:]...)
	}
	return prefix, nil
}

type quadIterator struct {
	decoder  *Decoder
	interner Interner
	it       Iterator
	keyOrder []int
	closed   bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed {
		return false
	}
	return qi.it.Next()
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	key := qi.it.Key()
	if len(key) < len(qi.keyOrder)*EncodedTermSize {
		return nil, NewCorruptionError(fmt.Sprintf("index key too short: %d bytes", len(key)))
	}

	terms := make([]EncodedTerm, len(qi.keyOrder))
	for i := range qi.keyOrder {
		off := i * EncodedTermSize
		copy(terms[i][:], key[off:off+EncodedTermSize])
	}

	positions := make([]EncodedTerm, 4)
	for i, idx := range qi.keyOrder {
		positions[idx] = terms[i]
	}

	s, err := qi.decoder.DecodeTerm(qi.interner, positions[0])
	if err != nil {
		return nil, fmt.Errorf("store: decode subject: %w", err)
	}
	p, err := qi.decoder.DecodeTerm(qi.interner, positions[1])
	if err != nil {
		return nil, fmt.Errorf("store: decode predicate: %w", err)
	}
	o, err := qi.decoder.DecodeTerm(qi.interner, positions[2])
	if err != nil {
		return nil, fmt.Errorf("store: decode object: %w", err)
	}

	var g rdf.Term = rdf.NewDefaultGraph()
	if len(qi.keyOrder) > 3 {
		g, err = qi.decoder.DecodeTerm(qi.interner, positions[3])
		if err != nil {
			return nil, fmt.Errorf("store: decode graph: %w", err)
		}
	}

	return &rdf.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, nil
}

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	return qi.it.Close()
}
