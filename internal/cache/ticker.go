package cache

import (
	"sync"

	"folio_go/internal/domain"
)

// TickerCache is the single-slot latest-ticker cache for one symbol.
// The initialized flag distinguishes "never received" from "received a
// value".
type TickerCache struct {
	mu          sync.RWMutex
	ticker      domain.Ticker
	initialized bool
}

// NewTickerCache creates an empty ticker cache.
func NewTickerCache() *TickerCache {
	return &TickerCache{}
}

// Update replaces the stored ticker.
func (t *TickerCache) Update(ticker domain.Ticker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticker = ticker
	t.initialized = true
}

// Last returns the latest ticker and whether one was ever received.
func (t *TickerCache) Last() (domain.Ticker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticker, t.initialized
}
