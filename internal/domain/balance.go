package domain

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Balance represents the portfolio entry for a single currency.
// Invariant: Total == Free + Used at all times visible to consumers.
type Balance struct {
	Currency string          `json:"currency"`
	Free     decimal.Decimal `json:"free"`
	Used     decimal.Decimal `json:"used"` // Reserved for open orders
	Total    decimal.Decimal `json:"total"`
}

// CheckInvariant verifies the balance satisfies its invariants.
// Quantities must be non-negative and Total must equal Free + Used.
func (b Balance) CheckInvariant() error {
	if b.Free.IsNegative() || b.Used.IsNegative() || b.Total.IsNegative() {
		return &InvariantError{Currency: b.Currency, Reason: "negative quantity"}
	}
	if !b.Total.Equal(b.Free.Add(b.Used)) {
		return &InvariantError{Currency: b.Currency, Reason: "total != free + used"}
	}
	return nil
}

// Portfolio maps currency to its balance for one exchange session.
// It is owned by the personal data aggregator and mutated only through
// validated balance updates. Balance and ticker updates arrive on
// different dispatch goroutines, so reads and writes are locked.
type Portfolio struct {
	mu       sync.RWMutex
	balances map[string]Balance
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		balances: make(map[string]Balance),
	}
}

// Set replaces the stored entry for the balance's currency.
// The invariant is a precondition on the input, not a derived computation.
func (p *Portfolio) Set(b Balance) error {
	if err := b.CheckInvariant(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[b.Currency] = b
	return nil
}

// Get returns the balance for a currency and whether it exists.
func (p *Portfolio) Get(currency string) (Balance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.balances[currency]
	return b, ok
}

// Currencies returns all held currencies sorted for consistent ordering.
func (p *Portfolio) Currencies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]string, 0, len(p.balances))
	for c := range p.balances {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// Snapshot returns a copy of all balances. Consumers read snapshots,
// never the live map.
func (p *Portfolio) Snapshot() map[string]Balance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[string]Balance, len(p.balances))
	for c, b := range p.balances {
		result[c] = b
	}
	return result
}
