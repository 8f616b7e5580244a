package store

import "sync"

// txnInterner adapts a Transaction's TableID2Str column into the Interner
// interface the term codec needs, with an in-process read cache: the
// hash->string mapping is content-addressed and therefore immutable, so a
// cached read can never go stale.
type txnInterner struct {
	txn   Transaction
	cache *internCache
}

// internCache is shared across all transactions opened against one Storage,
// amortizing repeated lookups of frequently-used terms (predicates, rdf:type,
// common datatypes) across queries.
type internCache struct {
	mu sync.RWMutex
	m  map[[16]byte][]byte
}

func newInternCache() *internCache {
	return &internCache{m: make(map[[16]byte][]byte)}
}

func newTxnInterner(txn Transaction, cache *internCache) Interner {
	return &txnInterner{txn: txn, cache: cache}
}

func (i *txnInterner) PutHashed(hash [16]byte, value []byte) error {
	i.cache.mu.RLock()
	_, cached := i.cache.m[hash]
	i.cache.mu.RUnlock()
	if cached {
		return nil
	}

	existing, err := i.txn.Get(TableID2Str, hash[:])
	if err == nil && string(existing) == string(value) {
		i.store(hash, value)
		return nil
	}
	if err != nil && err != ErrNotFound {
		return err
	}
	if err := i.txn.Set(TableID2Str, hash[:], value); err != nil {
		return err
	}
	i.store(hash, value)
	return nil
}

func (i *txnInterner) GetHashed(hash [16]byte) ([]byte, error) {
	i.cache.mu.RLock()
	if v, ok := i.cache.m[hash]; ok {
		i.cache.mu.RUnlock()
		return v, nil
	}
	i.cache.mu.RUnlock()

	v, err := i.txn.Get(TableID2Str, hash[:])
	if err != nil {
		return nil, err
	}
	i.store(hash, v)
	return v, nil
}

func (i *txnInterner) store(hash [16]byte, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	i.cache.mu.Lock()
	i.cache.m[hash] = cp
	i.cache.mu.Unlock()
}
