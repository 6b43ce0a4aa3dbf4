package cache

import (
	"sort"
	"sync"

	"folio_go/internal/domain"
)

// MaxBookDepth caps the tracked order book at 100 price levels per side.
const MaxBookDepth = 100

// OrderBook tracks the bounded order book for one symbol. Asks are kept
// ascending by price, bids descending, both truncated to MaxBookDepth.
type OrderBook struct {
	mu          sync.RWMutex
	asks        []domain.BookLevel
	bids        []domain.BookLevel
	initialized bool
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Update replaces the tracked book with the given sides.
func (b *OrderBook) Update(asks, bids []domain.BookLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks = sortSide(append(b.asks[:0:0], asks...), true)
	b.bids = sortSide(append(b.bids[:0:0], bids...), false)
	b.initialized = true
}

// DeltaUpdate applies incremental level changes without replacing the
// whole structure. A zero amount removes the level; removing a level that
// doesn't exist is a no-op.
func (b *OrderBook) DeltaUpdate(asks, bids []domain.BookLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks = applyDeltas(b.asks, asks, true)
	b.bids = applyDeltas(b.bids, bids, false)
	b.initialized = true
}

// Snapshot returns copies of both sides.
func (b *OrderBook) Snapshot() (asks, bids []domain.BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	asks = make([]domain.BookLevel, len(b.asks))
	copy(asks, b.asks)
	bids = make([]domain.BookLevel, len(b.bids))
	copy(bids, b.bids)
	return asks, bids
}

// Initialized distinguishes "never received" from "received a value".
func (b *OrderBook) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func sortSide(levels []domain.BookLevel, ascending bool) []domain.BookLevel {
	sort.Slice(levels, func(i, j int) bool {
		if ascending {
			return levels[i].Price.LessThan(levels[j].Price)
		}
		return levels[i].Price.GreaterThan(levels[j].Price)
	})
	if len(levels) > MaxBookDepth {
		levels = levels[:MaxBookDepth]
	}
	return levels
}

func applyDeltas(side, deltas []domain.BookLevel, ascending bool) []domain.BookLevel {
	for _, delta := range deltas {
		idx := -1
		for i := range side {
			if side[i].Price.Equal(delta.Price) {
				idx = i
				break
			}
		}
		switch {
		case delta.Amount.IsZero():
			if idx >= 0 {
				side = append(side[:idx], side[idx+1:]...)
			}
		case idx >= 0:
			side[idx].Amount = delta.Amount
		default:
			side = append(side, delta)
		}
	}
	return sortSide(side, ascending)
}
