// Package update implements C7, the UpdateExecutor: driving SPARQL Update
// operations directly against a store.Writer transaction, bypassing
// GraphPatternEvaluator except for Modify's WHERE clause (where it builds a
// one-off engine.Engine over a snapshot reader), generalizing the teacher's
// lack of any update support onto spec section 4.7 the way oxigraph's
// lib/src/sparql/update.go SimpleUpdateEvaluator is structured.
package update

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
	"github.com/aleksaelezovic/trigo/pkg/sparql/expr"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// QuadSource streams quads parsed from a Load body; concrete RDF syntax
// parsers are out of scope (spec.md §1), so Load only ever drives against a
// caller-supplied QuadSource.
type QuadSource interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Err() error
}

// Decoder turns the bytes of one RDF content type into a QuadSource. Load
// looks one up by the response's Content-Type, failing (or, if Silent,
// no-opping) when nothing is registered for it.
type Decoder func(io.Reader) (QuadSource, error)

// HTTPGetter fetches an RDF document for Load; the zero value uses
// http.Get. Tests substitute a stub to avoid a real network dependency.
type HTTPGetter func(iri string) (contentType string, body io.ReadCloser, err error)

func defaultHTTPGetter(iri string) (string, io.ReadCloser, error) {
	resp, err := http.Get(iri)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return "", nil, fmt.Errorf("update: GET %s: status %s", iri, resp.Status)
	}
	return resp.Header.Get("Content-Type"), resp.Body, nil
}

// Executor applies algebra.Update operations to one store.Writer
// transaction. One Executor is built per update request; Modify opens its
// own short-lived store.Reader snapshot for WHERE, since the Writer itself
// exposes no read-back view of its in-progress transaction.
type Executor struct {
	qs       *store.QuadStore
	writer   *store.Writer
	interner store.Interner
	dec      *store.Decoder
	baseIRI  string
	now      time.Time
	custom   map[string]expr.CustomFunction
	services map[string]engine.ServiceHandler
	decoders map[string]Decoder
	fetch    HTTPGetter
	blanks   func() *rdf.BlankNode
}

// New returns an Executor. decoders may be nil (Load then always fails
// unless Silent); fetch nil defaults to a plain http.Get.
func New(
	qs *store.QuadStore,
	writer *store.Writer,
	interner store.Interner,
	baseIRI string,
	now time.Time,
	custom map[string]expr.CustomFunction,
	services map[string]engine.ServiceHandler,
	decoders map[string]Decoder,
	fetch HTTPGetter,
) *Executor {
	if fetch == nil {
		fetch = defaultHTTPGetter
	}
	return &Executor{
		qs:       qs,
		writer:   writer,
		interner: interner,
		dec:      store.NewDecoder(),
		baseIRI:  baseIRI,
		now:      now,
		custom:   custom,
		services: services,
		decoders: decoders,
		fetch:    fetch,
		blanks:   func() *rdf.BlankNode { return rdf.NewBlankNode(uuid.New().String()) },
	}
}

// Execute runs every operation in ops in order, stopping at the first
// unsilenced error (per spec 4.7: updates are a sequence, not a
// transaction across operations -- earlier ones already committed-in-effect
// against the same Writer survive a later failure).
func (x *Executor) Execute(ops []algebra.Update) error {
	for _, op := range ops {
		if err := x.execOne(op); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) execOne(op algebra.Update) error {
	switch u := op.(type) {
	case *algebra.InsertData:
		return x.insertData(u)
	case *algebra.DeleteData:
		return x.deleteData(u)
	case *algebra.Modify:
		return x.modify(u)
	case *algebra.Load:
		return x.load(u)
	case *algebra.Clear:
		return x.clear(u)
	case *algebra.Create:
		return x.create(u)
	case *algebra.Drop:
		return x.drop(u)
	default:
		return fmt.Errorf("update: unhandled operation %T", op)
	}
}

func (x *Executor) decode(enc store.EncodedTerm) (rdf.Term, error) {
	return x.dec.DecodeTerm(x.interner, enc)
}

// resolveTerm resolves one QuadTemplate position. tuple is nil for
// InsertData/DeleteData (no WHERE solution); blanks mints a fresh blank node
// the first time an unbound slot is seen, scoped by the caller to either the
// whole operation (InsertData) or one solution (Modify's Insert).
func (x *Executor) resolveTerm(pt algebra.PatternTerm, tuple *algebra.Tuple, blanks map[algebra.Slot]rdf.Term) (rdf.Term, bool, error) {
	if pt.AnyName {
		return rdf.NewDefaultGraph(), true, nil
	}
	if !pt.IsSlot {
		t, err := x.decode(*pt.Bound)
		return t, true, err
	}
	if tuple != nil {
		if enc, ok := tuple.Get(pt.Slot); ok {
			t, err := x.decode(enc)
			return t, true, err
		}
	}
	if blanks == nil {
		return nil, false, nil
	}
	if t, ok := blanks[pt.Slot]; ok {
		return t, true, nil
	}
	bn := x.blanks()
	blanks[pt.Slot] = bn
	return bn, true, nil
}

// instantiate resolves every position of tmpl, returning ok=false when any
// position is a bound-form variable left unbound (the quad is silently
// dropped, per SPARQL's ground-quad-pattern rule).
func (x *Executor) instantiate(tmpl algebra.QuadTemplate, tuple *algebra.Tuple, blanks map[algebra.Slot]rdf.Term) (*rdf.Quad, bool, error) {
	s, ok, err := x.resolveTerm(tmpl.Subject, tuple, blanks)
	if err != nil || !ok {
		return nil, false, err
	}
	p, ok, err := x.resolveTerm(tmpl.Predicate, tuple, blanks)
	if err != nil || !ok {
		return nil, false, err
	}
	o, ok, err := x.resolveTerm(tmpl.Object, tuple, blanks)
	if err != nil || !ok {
		return nil, false, err
	}
	g, ok, err := x.resolveTerm(tmpl.Graph, tuple, blanks)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rdf.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, true, nil
}

// insertData and deleteData share one per-operation blank-node identity map
// (spec 4.7: "blank nodes in the literal form share identity per-operation").
func (x *Executor) insertData(op *algebra.InsertData) error {
	blanks := map[algebra.Slot]rdf.Term{}
	for _, tmpl := range op.Quads {
		q, ok, err := x.instantiate(tmpl, nil, blanks)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := x.writer.InsertQuad(q); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) deleteData(op *algebra.DeleteData) error {
	blanks := map[algebra.Slot]rdf.Term{}
	for _, tmpl := range op.Quads {
		q, ok, err := x.instantiate(tmpl, nil, blanks)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := x.writer.RemoveQuad(q); err != nil {
			return err
		}
	}
	return nil
}
