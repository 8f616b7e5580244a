// Package stats implements C8: a process-lifetime CancellationToken threaded
// into engine.Engine as a CancelFunc, a StatsIterator decorator that samples
// monotonic time and result counts across Next() calls, and a JSON EXPLAIN
// node tree, per spec section 4.8.
package stats

import (
	"sync/atomic"

	"github.com/aleksaelezovic/trigo/pkg/sparql/engine"
)

// CancellationToken is the shared atomic flag spec 4.8 describes: cancel()
// sets it from any thread, is_cancelled() reads it, and every compiled
// iterator probes it once per Next call via the Func adapter.
type CancellationToken struct {
	cancelled atomic.Bool
}

// NewCancellationToken returns a token in the not-cancelled state.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel flips the token; safe to call from any goroutine, any number of
// times.
func (c *CancellationToken) Cancel() {
	c.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (c *CancellationToken) IsCancelled() bool {
	return c.cancelled.Load()
}

// Func adapts the token to engine.CancelFunc, the hook engine.New threads
// into every compiled iterator.
func (c *CancellationToken) Func() engine.CancelFunc {
	return c.IsCancelled
}
