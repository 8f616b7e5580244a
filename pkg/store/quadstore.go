package store

import (
	"fmt"
	"log"
	"sync"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// QuadStore is the multi-index quad store described by this module's
// storage component: six named-graph permutation indexes (SPOG/POSG/OSPG/
// GSPO/GPOS/GOSP), three default-graph permutation indexes (SPO/POS/OSP),
// and a set of known named graphs, all layered over a backend-agnostic
// Storage. It owns term encoding/decoding and the string interner; callers
// never see raw EncodedTerm bytes.
type QuadStore struct {
	storage Storage
	enc     *Encoder
	dec     *Decoder
	cache   *internCache
}

// NewQuadStore wraps storage with the quad-index/encoding layer.
func NewQuadStore(storage Storage) *QuadStore {
	return &QuadStore{
		storage: storage,
		enc:     NewEncoder(),
		dec:     NewDecoder(),
		cache:   newInternCache(),
	}
}

func (s *QuadStore) Close() error { return s.storage.Close() }

// Reader returns a read-only snapshot transaction. Callers must Close() it
// when done (see Transaction.Rollback, which Reader wraps).
func (s *QuadStore) Reader() (*Reader, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, NewStorageError("begin reader", err)
	}
	return &Reader{store: s, txn: txn, interner: newTxnInterner(txn, s.cache)}, nil
}

// Reader is a snapshot view over the store, isolated from concurrent writers
// per spec.md's "readers see a consistent point-in-time snapshot" contract.
type Reader struct {
	store    *QuadStore
	txn      Transaction
	interner Interner
}

func (r *Reader) Close() error { return r.txn.Rollback() }

func (r *Reader) EncodeTerm(term rdf.Term) (EncodedTerm, error) {
	return r.store.enc.EncodeTerm(r.interner, term)
}

func (r *Reader) DecodeTerm(enc EncodedTerm) (rdf.Term, error) {
	return r.store.dec.DecodeTerm(r.interner, enc)
}

func (r *Reader) Contains(quad *rdf.Quad) (bool, error) {
	se, pe, oe, ge, err := r.encodeQuad(quad)
	if err != nil {
		return false, err
	}
	_, err = r.txn.Get(TableSPOG, EncodeQuadKey(se, pe, oe, ge))
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError("contains", err)
	}
	return true, nil
}

// Count returns the exact number of quads via a full scan of SPOG -- linear,
// as spec.md leaves cardinality estimation/statistics to C8, not C2.
func (r *Reader) Count() (int64, error) {
	it, err := r.txn.Scan(TableSPOG, nil, nil)
	if err != nil {
		return 0, NewStorageError("count", err)
	}
	defer it.Close()
	var n int64
	for it.Next() {
		n++
	}
	return n, nil
}

// ListGraphs returns every named graph the graphs set has ever recorded
// (via insert, CREATE, or an explicit graph-name registration), per the
// "graphs set tracks membership even for empty graphs" invariant of §3.4.
func (r *Reader) ListGraphs() ([]rdf.Term, error) {
	it, err := r.txn.Scan(TableGraphs, nil, nil)
	if err != nil {
		return nil, NewStorageError("list graphs", err)
	}
	defer it.Close()

	var graphs []rdf.Term
	for it.Next() {
		var ge EncodedTerm
		copy(ge[:], it.Key())
		g, err := r.store.dec.DecodeTerm(r.interner, ge)
		if err != nil {
			return nil, fmt.Errorf("store: decode graph name: %w", err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func (r *Reader) encodeQuad(quad *rdf.Quad) (se, pe, oe, ge EncodedTerm, err error) {
	if se, err = r.EncodeTerm(quad.Subject); err != nil {
		return
	}
	if pe, err = r.EncodeTerm(quad.Predicate); err != nil {
		return
	}
	if oe, err = r.EncodeTerm(quad.Object); err != nil {
		return
	}
	graph := quad.Graph
	if graph == nil {
		graph = rdf.NewDefaultGraph()
	}
	ge, err = r.EncodeTerm(graph)
	return
}

// Writer is the single exclusive write transaction for a Storage: spec.md's
// concurrency model allows many concurrent Readers but at most one Writer.
type Writer struct {
	store    *QuadStore
	txn      Transaction
	interner Interner
}

func (s *QuadStore) Writer() (*Writer, error) {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return nil, NewStorageError("begin writer", err)
	}
	return &Writer{store: s, txn: txn, interner: newTxnInterner(txn, s.cache)}, nil
}

func (w *Writer) Commit() error   { return w.txn.Commit() }
func (w *Writer) Rollback() error { return w.txn.Rollback() }

// InsertQuad adds quad to every index it participates in (three default-graph
// indexes if the graph is the default graph, the six named-graph indexes
// always, plus the graphs set when the graph is named). Returns true if the
// quad was newly inserted.
func (w *Writer) InsertQuad(quad *rdf.Quad) (bool, error) {
	se, err := w.store.enc.EncodeTerm(w.interner, quad.Subject)
	if err != nil {
		return false, err
	}
	pe, err := w.store.enc.EncodeTerm(w.interner, quad.Predicate)
	if err != nil {
		return false, err
	}
	oe, err := w.store.enc.EncodeTerm(w.interner, quad.Object)
	if err != nil {
		return false, err
	}
	graph := quad.Graph
	if graph == nil {
		graph = rdf.NewDefaultGraph()
	}
	ge, err := w.store.enc.EncodeTerm(w.interner, graph)
	if err != nil {
		return false, err
	}

	spogKey := EncodeQuadKey(se, pe, oe, ge)
	if _, err := w.txn.Get(TableSPOG, spogKey); err == nil {
		return false, nil // already present
	} else if err != ErrNotFound {
		return false, NewStorageError("insert lookup", err)
	}

	empty := []byte{}
	isDefault := graph.Type() == rdf.TermTypeDefaultGraph
	if isDefault {
		if err := w.txn.Set(TableSPO, EncodeQuadKey(se, pe, oe), empty); err != nil {
			return false, NewStorageError("insert spo", err)
		}
		if err := w.txn.Set(TablePOS, EncodeQuadKey(pe, oe, se), empty); err != nil {
			return false, NewStorageError("insert pos", err)
		}
		if err := w.txn.Set(TableOSP, EncodeQuadKey(oe, se, pe), empty); err != nil {
			return false, NewStorageError("insert osp", err)
		}
	}

	if err := w.txn.Set(TableSPOG, spogKey, empty); err != nil {
		return false, NewStorageError("insert spog", err)
	}
	if err := w.txn.Set(TablePOSG, EncodeQuadKey(pe, oe, se, ge), empty); err != nil {
		return false, NewStorageError("insert posg", err)
	}
	if err := w.txn.Set(TableOSPG, EncodeQuadKey(oe, se, pe, ge), empty); err != nil {
		return false, NewStorageError("insert ospg", err)
	}
	if err := w.txn.Set(TableGSPO, EncodeQuadKey(ge, se, pe, oe), empty); err != nil {
		return false, NewStorageError("insert gspo", err)
	}
	if err := w.txn.Set(TableGPOS, EncodeQuadKey(ge, pe, oe, se), empty); err != nil {
		return false, NewStorageError("insert gpos", err)
	}
	if err := w.txn.Set(TableGOSP, EncodeQuadKey(ge, oe, se, pe), empty); err != nil {
		return false, NewStorageError("insert gosp", err)
	}

	if !isDefault {
		if err := w.txn.Set(TableGraphs, ge[:], empty); err != nil {
			return false, NewStorageError("insert graphs", err)
		}
	}
	return true, nil
}

// RemoveQuad removes quad from every index it participates in. Per
// spec.md's no-GC design note, interner (id2str) entries are never removed:
// a string may still be referenced by other quads, and reclaiming it would
// require a reference count this module does not keep.
func (w *Writer) RemoveQuad(quad *rdf.Quad) (bool, error) {
	se, err := w.store.enc.EncodeTerm(w.interner, quad.Subject)
	if err != nil {
		return false, err
	}
	pe, err := w.store.enc.EncodeTerm(w.interner, quad.Predicate)
	if err != nil {
		return false, err
	}
	oe, err := w.store.enc.EncodeTerm(w.interner, quad.Object)
	if err != nil {
		return false, err
	}
	graph := quad.Graph
	if graph == nil {
		graph = rdf.NewDefaultGraph()
	}
	ge, err := w.store.enc.EncodeTerm(w.interner, graph)
	if err != nil {
		return false, err
	}

	spogKey := EncodeQuadKey(se, pe, oe, ge)
	if _, err := w.txn.Get(TableSPOG, spogKey); err == ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, NewStorageError("remove lookup", err)
	}

	isDefault := graph.Type() == rdf.TermTypeDefaultGraph
	if isDefault {
		_ = w.txn.Delete(TableSPO, EncodeQuadKey(se, pe, oe))
		_ = w.txn.Delete(TablePOS, EncodeQuadKey(pe, oe, se))
		_ = w.txn.Delete(TableOSP, EncodeQuadKey(oe, se, pe))
	}
	_ = w.txn.Delete(TableSPOG, spogKey)
	_ = w.txn.Delete(TablePOSG, EncodeQuadKey(pe, oe, se, ge))
	_ = w.txn.Delete(TableOSPG, EncodeQuadKey(oe, se, pe, ge))
	_ = w.txn.Delete(TableGSPO, EncodeQuadKey(ge, se, pe, oe))
	_ = w.txn.Delete(TableGPOS, EncodeQuadKey(ge, pe, oe, se))
	_ = w.txn.Delete(TableGOSP, EncodeQuadKey(ge, oe, se, pe))
	return true, nil
}

// ClearGraph removes every quad in the given named graph.
func (w *Writer) ClearGraph(graph rdf.Term) error {
	it, err := w.iterQuadsInGraph(graph)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return err
		}
		if _, err := w.RemoveQuad(q); err != nil {
			return err
		}
	}
	return nil
}

// ClearDefault removes every quad in the default graph.
func (w *Writer) ClearDefault() error { return w.ClearGraph(rdf.NewDefaultGraph()) }

// ClearAllNamed removes every quad in every named graph, dropping the graphs
// set entirely.
func (w *Writer) ClearAllNamed() error {
	it, err := w.txn.Scan(TableGraphs, nil, nil)
	if err != nil {
		return NewStorageError("scan graphs", err)
	}
	var graphs []EncodedTerm
	for it.Next() {
		var ge EncodedTerm
		copy(ge[:], it.Key())
		graphs = append(graphs, ge)
	}
	it.Close()

	for _, ge := range graphs {
		g, err := w.store.dec.DecodeTerm(w.interner, ge)
		if err != nil {
			return err
		}
		if err := w.ClearGraph(g); err != nil {
			return err
		}
		_ = w.txn.Delete(TableGraphs, ge[:])
	}
	return nil
}

// ClearAll empties the store entirely (default graph and every named graph).
func (w *Writer) ClearAll() error {
	if err := w.ClearDefault(); err != nil {
		return err
	}
	return w.ClearAllNamed()
}

// CreateGraph registers an empty named graph (a no-op at the index level:
// named graphs exist implicitly once they hold a quad, but CREATE GRAPH must
// still succeed and DROP GRAPH / GRAPH ?g iteration should see it).
func (w *Writer) CreateGraph(graph rdf.Term) error {
	ge, err := w.store.enc.EncodeTerm(w.interner, graph)
	if err != nil {
		return err
	}
	return w.txn.Set(TableGraphs, ge[:], []byte{})
}

// DropGraph clears and deregisters a named graph.
func (w *Writer) DropGraph(graph rdf.Term) error {
	if err := w.ClearGraph(graph); err != nil {
		return err
	}
	ge, err := w.store.enc.EncodeTerm(w.interner, graph)
	if err != nil {
		return err
	}
	return w.txn.Delete(TableGraphs, ge[:])
}

func (w *Writer) iterQuadsInGraph(graph rdf.Term) (QuadIterator, error) {
	ge, err := w.store.enc.EncodeTerm(w.interner, graph)
	if err != nil {
		return nil, err
	}
	prefix := ge[:]
	it, err := w.txn.Scan(TableGSPO, prefix, nil)
	if err != nil {
		return nil, NewStorageError("scan graph", err)
	}
	return &quadIterator{
		decoder:  w.store.dec,
		interner: w.interner,
		it:       it,
		keyOrder: []int{3, 0, 1, 2},
	}, nil
}

// BulkLoad inserts quads from src in batches of at most batchSize, committing
// between batches and reporting progress through progress (may be nil).
// batchSize <= 0 defaults to 100,000, matching spec.md's bulk-loader budget.
func (s *QuadStore) BulkLoad(src func(yield func(*rdf.Quad) bool), batchSize int, progress func(loaded int64)) (int64, error) {
	if batchSize <= 0 {
		batchSize = 100_000
	}
	var total int64
	var w *Writer
	var inBatch int
	var batchErr error

	flush := func() error {
		if w == nil {
			return nil
		}
		if err := w.Commit(); err != nil {
			return NewStorageError("bulk load commit", err)
		}
		w = nil
		inBatch = 0
		if progress != nil {
			progress(total)
		}
		log.Printf("store: bulk load committed %s quads", humanize.Comma(total))
		return nil
	}

	src(func(q *rdf.Quad) bool {
		if w == nil {
			w, batchErr = s.Writer()
			if batchErr != nil {
				return false
			}
		}
		if _, err := w.InsertQuad(q); err != nil {
			batchErr = err
			return false
		}
		total++
		inBatch++
		if inBatch >= batchSize {
			if err := flush(); err != nil {
				batchErr = err
				return false
			}
		}
		return true
	})
	if batchErr != nil {
		if w != nil {
			_ = w.Rollback()
		}
		return total, batchErr
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// Validate performs an opt-in consistency check: every named-graph index
// must agree on cardinality, and every default-graph index likewise. The
// nine tables are counted by independent scans that run concurrently. Only
// entry counts are compared: it does not check that each quad is present in
// every index, that interner hashes referenced from index entries resolve,
// or that the graphs set matches the graph names in the indexes.
func (s *QuadStore) Validate() error {
	r, err := s.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	var g errgroup.Group
	counts := make(map[Table]int64)
	var mu = &countMutex{counts: counts}

	namedTables := []Table{TableSPOG, TablePOSG, TableOSPG, TableGSPO, TableGPOS, TableGOSP}
	defaultTables := []Table{TableSPO, TablePOS, TableOSP}

	for _, t := range append(append([]Table{}, namedTables...), defaultTables...) {
		t := t
		g.Go(func() error {
			n, err := s.countTable(r, t)
			if err != nil {
				return err
			}
			mu.set(t, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	first := counts[namedTables[0]]
	for _, t := range namedTables[1:] {
		if counts[t] != first {
			return NewCorruptionError(fmt.Sprintf("named-graph index %s has %d entries, expected %d", t, counts[t], first))
		}
	}
	firstDefault := counts[defaultTables[0]]
	for _, t := range defaultTables[1:] {
		if counts[t] != firstDefault {
			return NewCorruptionError(fmt.Sprintf("default-graph index %s has %d entries, expected %d", t, counts[t], firstDefault))
		}
	}
	return nil
}

func (s *QuadStore) countTable(r *Reader, t Table) (int64, error) {
	it, err := r.txn.Scan(t, nil, nil)
	if err != nil {
		return 0, NewStorageError("validate scan", err)
	}
	defer it.Close()
	var n int64
	for it.Next() {
		n++
	}
	return n, nil
}

type countMutex struct {
	mu     sync.Mutex
	counts map[Table]int64
}

func (c *countMutex) set(t Table, n int64) {
	c.mu.Lock()
	c.counts[t] = n
	c.mu.Unlock()
}
