package cache

import (
	"sync"

	"folio_go/internal/domain"
)

// MaxRecentTrades bounds the per-symbol recent trades buffer.
const MaxRecentTrades = 100

// RecentTrades is a fixed-capacity ring buffer of the latest trades for
// one symbol, oldest evicted first.
type RecentTrades struct {
	mu          sync.RWMutex
	capacity    int
	trades      []domain.Trade
	initialized bool
}

// NewRecentTrades creates an empty buffer. capacity <= 0 uses the default.
func NewRecentTrades(capacity int) *RecentTrades {
	if capacity <= 0 {
		capacity = MaxRecentTrades
	}
	return &RecentTrades{capacity: capacity}
}

// Update appends a batch of trades, evicting the oldest beyond capacity.
func (r *RecentTrades) Update(trades []domain.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trades...)
	if len(r.trades) > r.capacity {
		r.trades = r.trades[len(r.trades)-r.capacity:]
	}
	r.initialized = true
}

// AppendOne pushes a single trade with oldest-eviction.
func (r *RecentTrades) AppendOne(trade domain.Trade) {
	r.Update([]domain.Trade{trade})
}

// Snapshot returns a copy of the newest limit trades, oldest first.
// limit <= 0 returns everything.
func (r *RecentTrades) Snapshot(limit int) []domain.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trades := r.trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	result := make([]domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// Len returns the number of buffered trades.
func (r *RecentTrades) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trades)
}

// Initialized distinguishes "never received" from "received a value".
func (r *RecentTrades) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}
