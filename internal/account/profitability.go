package account

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/infra"
)

var hundred = decimal.NewFromInt(100)

// State is the atomically recomputed profitability view. Readers always
// see a complete snapshot, never a partially updated one.
type State struct {
	Profitability        decimal.Decimal `json:"profitability"`
	ProfitabilityPercent decimal.Decimal `json:"profitability_percent"`
	ProfitabilityDelta   decimal.Decimal `json:"profitability_delta"`
	MarketAveragePercent decimal.Decimal `json:"market_average_percent"`

	// OriginProfitabilityPercent is the current profitability of the
	// origin portfolio contents, i.e. what holding the starting portfolio
	// untouched would be worth now.
	OriginProfitabilityPercent decimal.Decimal `json:"origin_profitability_percent"`

	OriginValue  decimal.Decimal `json:"origin_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
}

// Profitability maintains the portfolio valuation in the reference market.
// It consumes ticker and balance update notifications and recomputes the
// State as a pure function of the current portfolio, the cached last
// prices and the origin snapshot.
type Profitability struct {
	exchangeName    string
	referenceMarket string
	tradedPairs     []string
	exchange        domain.SymbolChecker
	bus             *channel.Bus
	portfolio       *domain.Portfolio

	mu    sync.RWMutex
	state State

	// lastPrices maps pair symbol to last traded price, appended lazily as
	// pairs are subscribed.
	lastPrices map[string]decimal.Decimal

	// currentValues caches each currency's reference-market unit value for
	// one recompute pass only; reset at the start of each pass.
	currentValues map[string]decimal.Decimal
	originValues  map[string]decimal.Decimal

	// originPortfolio is the session baseline, written once by the first
	// valid recompute and read-only afterwards.
	originPortfolio map[string]domain.Balance

	// tradable holds currencies appearing as a base asset in at least one
	// traded pair; quote-only currencies are excluded from the market
	// average. Computed once and cached.
	tradable map[string]struct{}

	// warned tracks currencies already reported as having no price path,
	// to suppress log spam and repeated re-subscription requests.
	warned map[string]struct{}
}

// NewProfitability creates the valuation engine for one exchange session.
func NewProfitability(exchangeName, referenceMarket string, tradedPairs []string,
	exchange domain.SymbolChecker, bus *channel.Bus, portfolio *domain.Portfolio) *Profitability {
	p := &Profitability{
		exchangeName:    exchangeName,
		referenceMarket: referenceMarket,
		tradedPairs:     append([]string(nil), tradedPairs...),
		exchange:        exchange,
		bus:             bus,
		portfolio:       portfolio,
		lastPrices:      make(map[string]decimal.Decimal),
		currentValues:   make(map[string]decimal.Decimal),
		originValues:    make(map[string]decimal.Decimal),
		tradable:        make(map[string]struct{}),
		warned:          make(map[string]struct{}),
	}
	for _, pair := range tradedPairs {
		if base, _, ok := splitPair(pair); ok {
			p.tradable[base] = struct{}{}
		}
	}
	return p
}

// Bind subscribes the engine to ticker and balance updates.
func (p *Profitability) Bind(bus *channel.Bus) {
	bus.Subscribe(channel.KindTicker, p.exchangeName, func(ev channel.Event) {
		if ticker, ok := ev.Data.(domain.Ticker); ok {
			p.HandleTickerUpdate(ev.Symbol, ticker.Last)
		}
	})
}

// HandleTickerUpdate records the pair's last price and recomputes.
// Returns true when the profitability percent meaningfully changed.
func (p *Profitability) HandleTickerUpdate(symbol string, last decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrices[symbol] = last
	return p.recompute()
}

// HandleBalanceUpdate recomputes after a validated balance change.
func (p *Profitability) HandleBalanceUpdate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recompute()
}

// recompute runs one valuation pass. It computes into locals and commits
// the new State atomically at the end; an unexpected failure leaves the
// previous State visible. Caller holds the lock.
func (p *Profitability) recompute() (changed bool) {
	infra.GlobalMetrics.RecordRecompute()
	prevPercent := p.state.ProfitabilityPercent

	defer func() {
		if r := recover(); r != nil {
			infra.GlobalMetrics.RecordError()
			slog.Error("profitability recompute failed, keeping previous state",
				slog.String("exchange", p.exchangeName),
				slog.Any("panic", r),
			)
			changed = false
		}
	}()

	// Reset the per-pass unit value cache, then value every configured
	// currency so the market average sees quote assets too.
	p.currentValues = make(map[string]decimal.Decimal)
	for _, pair := range p.tradedPairs {
		base, quote, ok := splitPair(pair)
		if !ok {
			continue
		}
		if _, done := p.currentValues[base]; !done {
			p.currentValues[base] = p.unitValue(base)
		}
		if _, done := p.currentValues[quote]; !done {
			p.currentValues[quote] = p.unitValue(quote)
		}
	}

	snapshot := p.portfolio.Snapshot()
	currentValue := p.evaluatePortfolio(snapshot)

	// First recompute seeing actual holdings becomes the baseline; the
	// only path that writes the origin snapshot.
	if p.originPortfolio == nil && len(snapshot) > 0 {
		p.originPortfolio = snapshot
	}

	// Origin unit values fill in lazily: a currency with no known price at
	// baseline time adopts its first observed price as origin, so the
	// baseline is valued at the earliest data available rather than 0.
	for currency, value := range p.currentValues {
		if origin, seen := p.originValues[currency]; !seen || (origin.IsZero() && !value.IsZero()) {
			p.originValues[currency] = value
		}
	}

	originRefValue := p.evaluatePortfolio(p.originPortfolio)

	next := State{
		OriginValue:  valueWithTable(p.originPortfolio, p.originValues),
		CurrentValue: currentValue,
	}
	next.Profitability = currentValue.Sub(next.OriginValue)
	if next.OriginValue.IsPositive() {
		next.ProfitabilityPercent = hundred.Mul(currentValue).Div(next.OriginValue).Sub(hundred)
		next.OriginProfitabilityPercent = hundred.Mul(originRefValue).Div(next.OriginValue).Sub(hundred)
	}
	next.ProfitabilityDelta = next.ProfitabilityPercent.Sub(prevPercent)
	next.MarketAveragePercent = p.marketAverage()

	p.state = next
	return !next.ProfitabilityDelta.IsZero()
}

// valueWithTable sums quantity times unit value using a fixed value
// table; currencies missing from the table contribute 0.
func valueWithTable(portfolio map[string]domain.Balance, values map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for currency, balance := range portfolio {
		if balance.Total.IsZero() {
			continue
		}
		total = total.Add(values[currency].Mul(balance.Total))
	}
	return total
}

// evaluatePortfolio sums quantity times reference-market unit value over
// held currencies with a non-zero total. Caller holds the lock.
func (p *Profitability) evaluatePortfolio(portfolio map[string]domain.Balance) decimal.Decimal {
	total := decimal.Zero
	for currency, balance := range portfolio {
		if balance.Total.IsZero() {
			continue
		}
		value, ok := p.currentValues[currency]
		if !ok {
			value = p.unitValue(currency)
			p.currentValues[currency] = value
		}
		total = total.Add(value.Mul(balance.Total))
	}
	return total
}

// unitValue returns the value of one unit of currency in the reference
// market: 1 for the reference market itself, the direct pair's last price,
// or the inverse of the inverted pair's last price. A missing price is an
// expected, recoverable condition: the value is 0 for this pass and the
// ticker channel is asked to start tracking whichever pair exists, once
// per currency until data arrives. Caller holds the lock.
func (p *Profitability) unitValue(currency string) decimal.Decimal {
	if currency == p.referenceMarket {
		return decimal.NewFromInt(1)
	}

	pair := mergePair(currency, p.referenceMarket)
	inverted := mergePair(p.referenceMarket, currency)

	if p.exchange.SymbolExists(pair) {
		if price, ok := p.lastPrices[pair]; ok && !price.IsZero() {
			return price
		}
		p.requestTracking(currency, pair)
		return decimal.Zero
	}
	if p.exchange.SymbolExists(inverted) {
		if price, ok := p.lastPrices[inverted]; ok && !price.IsZero() {
			return decimal.NewFromInt(1).Div(price)
		}
		p.requestTracking(currency, inverted)
		return decimal.Zero
	}

	p.informNoMatchingSymbol(currency, false)
	return decimal.Zero
}

// requestTracking asks the ticker channel to watch the pair so a future
// pass can value the currency, once per currency until data arrives.
func (p *Profitability) requestTracking(currency, pair string) {
	if _, done := p.warned[currency]; done {
		return
	}
	p.warned[currency] = struct{}{}
	slog.Warn("missing price data, requesting pair tracking",
		slog.String("exchange", p.exchangeName),
		slog.String("currency", currency),
		slog.String("pair", pair),
	)
	p.bus.Modify(channel.KindTicker, p.exchangeName, []string{pair}, nil)
}

// informNoMatchingSymbol logs at most once per currency unless forced.
func (p *Profitability) informNoMatchingSymbol(currency string, force bool) {
	if !force {
		if _, done := p.warned[currency]; done {
			return
		}
	}
	p.warned[currency] = struct{}{}
	slog.Warn("no matching symbol for currency",
		slog.String("exchange", p.exchangeName),
		slog.String("currency", currency),
		slog.String("reference", p.referenceMarket),
	)
}

// marketAverage returns the mean percent change, since the origin
// snapshot, of tradable currencies with a strictly positive origin unit
// value. 0 if no currency is eligible. Caller holds the lock.
func (p *Profitability) marketAverage() decimal.Decimal {
	sum := decimal.Zero
	count := 0
	for currency := range p.tradable {
		origin, ok := p.originValues[currency]
		if !ok || !origin.IsPositive() {
			continue
		}
		current, ok := p.currentValues[currency]
		if !ok {
			continue
		}
		sum = sum.Add(current.Div(origin))
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count))).Mul(hundred).Sub(hundred)
}

// State returns a read-only snapshot of the profitability state.
func (p *Profitability) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// CurrentHoldingsValues returns each held currency's reference-market
// value from the latest pass.
func (p *Profitability) CurrentHoldingsValues() map[string]decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.currentValues) == 0 {
		p.recompute()
	}
	snapshot := p.portfolio.Snapshot()
	result := make(map[string]decimal.Decimal)
	for currency, value := range p.currentValues {
		balance, ok := snapshot[currency]
		if !ok || balance.Total.IsZero() {
			result[currency] = decimal.Zero
			continue
		}
		result[currency] = value.Mul(balance.Total)
	}
	return result
}

// ResetWarned clears the rate-limited warning set so the next missing
// price is reported again. Used on explicit session resets.
func (p *Profitability) ResetWarned() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warned = make(map[string]struct{})
}

// splitPair splits "BTC/USDT" into base and quote.
func splitPair(pair string) (base, quote string, ok bool) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// mergePair builds the pair symbol for a base and quote currency.
func mergePair(base, quote string) string {
	return fmt.Sprintf("%s/%s", base, quote)
}
