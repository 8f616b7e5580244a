package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/aleksaelezovic/trigo/pkg/store"
)

// MemoryStorage is the default, non-persistent Storage backend: a single
// map per table, guarded by one reader/writer lock. Readers take a sorted
// copy of every table at Begin(false) time so they
// never observe a write that commits after they started, matching the same
// snapshot-isolation contract BadgerStorage gets for free from BadgerDB.
type MemoryStorage struct {
	mu     sync.RWMutex
	tables [int(store.TableCount)]map[string][]byte
	wlock  sync.Mutex // held by the single in-flight writer, per spec.md's concurrency model
}

func NewMemoryStorage() *MemoryStorage {
	m := &MemoryStorage{}
	for i := range m.tables {
		m.tables[i] = make(map[string][]byte)
	}
	return m
}

func (s *MemoryStorage) Begin(writable bool) (store.Transaction, error) {
	if writable {
		s.wlock.Lock()
		return &memoryTxn{storage: s, writable: true}, nil
	}

	s.mu.RLock()
	snapshot := make([][]kv, len(s.tables))
	for i, t := range s.tables {
		kvs := make([]kv, 0, len(t))
		for k, v := range t {
			kvs = append(kvs, kv{key: k, value: v})
		}
		sort.Slice(kvs, func(a, b int) bool { return kvs[a].key < kvs[b].key })
		snapshot[i] = kvs
	}
	s.mu.RUnlock()

	return &memoryTxn{storage: s, writable: false, snapshot: snapshot}, nil
}

func (s *MemoryStorage) Close() error { return nil }
func (s *MemoryStorage) Sync() error  { return nil }

type kv struct {
	key   string
	value []byte
}

type memoryTxn struct {
	storage  *MemoryStorage
	writable bool
	snapshot [][]kv // only set for read transactions

	// pendingSet/pendingDelete buffer writer mutations until Commit, so a
	// rolled-back writer never touches the shared tables.
	pendingSet    map[int]map[string][]byte
	pendingDelete map[int]map[string]bool
	done          bool
}

func (t *memoryTxn) Get(table store.Table, key []byte) ([]byte, error) {
	idx := int(table)
	k := string(key)

	if t.writable {
		if del := t.pendingDelete[idx]; del != nil && del[k] {
			return nil, store.ErrNotFound
		}
		if set := t.pendingSet[idx]; set != nil {
			if v, ok := set[k]; ok {
				return v, nil
			}
		}
		t.storage.mu.RLock()
		v, ok := t.storage.tables[idx][k]
		t.storage.mu.RUnlock()
		if !ok {
			return nil, store.ErrNotFound
		}
		return v, nil
	}

	for _, e := range t.snapshot[idx] {
		if e.key == k {
			return e.value, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memoryTxn) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	idx := int(table)
	if t.pendingSet == nil {
		t.pendingSet = make(map[int]map[string][]byte)
	}
	if t.pendingSet[idx] == nil {
		t.pendingSet[idx] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.pendingSet[idx][string(key)] = cp
	if del := t.pendingDelete[idx]; del != nil {
		delete(del, string(key))
	}
	return nil
}

func (t *memoryTxn) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	idx := int(table)
	if t.pendingDelete == nil {
		t.pendingDelete = make(map[int]map[string]bool)
	}
	if t.pendingDelete[idx] == nil {
		t.pendingDelete[idx] = make(map[string]bool)
	}
	t.pendingDelete[idx][string(key)] = true
	if set := t.pendingSet[idx]; set != nil {
		delete(set, string(key))
	}
	return nil
}

func (t *memoryTxn) Scan(table store.Table, start, end []byte) (store.Iterator, error) {
	idx := int(table)
	var kvs []kv

	if t.writable {
		t.storage.mu.RLock()
		for k, v := range t.storage.tables[idx] {
			kvs = append(kvs, kv{key: k, value: v})
		}
		t.storage.mu.RUnlock()
		if set := t.pendingSet[idx]; set != nil {
			for k, v := range set {
				kvs = append(kvs, kv{key: k, value: v})
			}
		}
		if del := t.pendingDelete[idx]; del != nil {
			filtered := kvs[:0]
			for _, e := range kvs {
				if !del[e.key] {
					filtered = append(filtered, e)
				}
			}
			kvs = filtered
		}
		sort.Slice(kvs, func(a, b int) bool { return kvs[a].key < kvs[b].key })
	} else {
		kvs = t.snapshot[idx]
	}

	lo := sort.Search(len(kvs), func(i int) bool {
		if start == nil {
			return true
		}
		return kvs[i].key >= string(start)
	})
	hi := len(kvs)
	if end != nil {
		hi = sort.Search(len(kvs), func(i int) bool { return kvs[i].key >= string(end) })
	}
	if start != nil {
		// Restrict to keys sharing the requested prefix, matching the
		// prefix-scan semantics BadgerStorage gives via opts.Prefix.
		filtered := make([]kv, 0, hi-lo)
		for _, e := range kvs[lo:hi] {
			if bytes.HasPrefix([]byte(e.key), start) {
				filtered = append(filtered, e)
			}
		}
		return &memoryIterator{items: filtered, pos: -1}, nil
	}

	return &memoryIterator{items: append([]kv{}, kvs[lo:hi]...), pos: -1}, nil
}

func (t *memoryTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.writable {
		return nil
	}
	defer t.storage.wlock.Unlock()

	t.storage.mu.Lock()
	for idx, set := range t.pendingSet {
		for k, v := range set {
			t.storage.tables[idx][k] = v
		}
	}
	for idx, del := range t.pendingDelete {
		for k := range del {
			delete(t.storage.tables[idx], k)
		}
	}
	t.storage.mu.Unlock()
	return nil
}

func (t *memoryTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		t.storage.wlock.Unlock()
	}
	return nil
}

type memoryIterator struct {
	items []kv
	pos   int
}

func (it *memoryIterator) Next() bool {
	it.pos++
	return it.pos < len(it.items)
}

func (it *memoryIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil
	}
	return []byte(it.items[it.pos].key)
}

func (it *memoryIterator) Value() ([]byte, error) {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil, store.ErrNotFound
	}
	return it.items[it.pos].value, nil
}

func (it *memoryIterator) Close() error { return nil }
