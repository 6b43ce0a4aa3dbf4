package cache

import (
	"fmt"
	"sort"
	"sync"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
)

// SymbolData bundles the bounded market caches for one (exchange, symbol):
// candle series keyed by timeframe, order book, recent trades and ticker.
// Per-timeframe candle managers are created lazily on first update.
type SymbolData struct {
	Symbol string

	mu      sync.RWMutex
	candles map[domain.Timeframe]*Candles

	candleCapacity int
	book           *OrderBook
	trades         *RecentTrades
	ticker         *TickerCache
}

// NewSymbolData creates the cache bundle for a symbol.
func NewSymbolData(symbol string, candleCapacity, tradeCapacity int) *SymbolData {
	return &SymbolData{
		Symbol:         symbol,
		candles:        make(map[domain.Timeframe]*Candles),
		candleCapacity: candleCapacity,
		book:           NewOrderBook(),
		trades:         NewRecentTrades(tradeCapacity),
		ticker:         NewTickerCache(),
	}
}

// HandleCandles applies a candle update for a timeframe. The first update
// for a timeframe always replaces the whole series.
func (s *SymbolData) HandleCandles(tf domain.Timeframe, series []domain.Candle, replaceAll bool) {
	s.mu.Lock()
	manager, ok := s.candles[tf]
	if !ok {
		manager = NewCandles(s.candleCapacity)
		s.candles[tf] = manager
		replaceAll = true
	}
	s.mu.Unlock()

	if replaceAll {
		manager.ReplaceAll(series)
		return
	}
	for _, candle := range series {
		manager.AddNew(candle)
	}
}

// CandleData returns the candle series for a timeframe. ok is false when
// no cache exists yet for that timeframe; this is distinguishable from an
// empty series.
func (s *SymbolData) CandleData(tf domain.Timeframe) (*Candles, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	manager, ok := s.candles[tf]
	return manager, ok
}

// Candles returns the candle series for a timeframe, or ErrNotAvailable
// when no update was ever received for it. An initialized but empty
// series is not an error.
func (s *SymbolData) Candles(tf domain.Timeframe) ([]domain.Candle, error) {
	manager, ok := s.CandleData(tf)
	if !ok {
		return nil, fmt.Errorf("%s candles for %s: %w", tf, s.Symbol, domain.ErrNotAvailable)
	}
	return manager.Snapshot(), nil
}

// Timeframes returns the timeframes with a candle cache, sorted.
func (s *SymbolData) Timeframes() []domain.Timeframe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Timeframe, 0, len(s.candles))
	for tf := range s.candles {
		result = append(result, tf)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// OrderBook returns the symbol's order book cache.
func (s *SymbolData) OrderBook() *OrderBook {
	return s.book
}

// RecentTrades returns the symbol's recent trades buffer.
func (s *SymbolData) RecentTrades() *RecentTrades {
	return s.trades
}

// Ticker returns the symbol's latest-ticker cache.
func (s *SymbolData) Ticker() *TickerCache {
	return s.ticker
}

// MarketData is the per-exchange registry of SymbolData bundles, created
// lazily on first update and destroyed with the exchange session.
type MarketData struct {
	exchange string

	mu      sync.RWMutex
	symbols map[string]*SymbolData

	candleCapacity int
	tradeCapacity  int
}

// NewMarketData creates an empty registry for one exchange session.
func NewMarketData(exchange string, candleCapacity, tradeCapacity int) *MarketData {
	return &MarketData{
		exchange:       exchange,
		symbols:        make(map[string]*SymbolData),
		candleCapacity: candleCapacity,
		tradeCapacity:  tradeCapacity,
	}
}

// Symbol returns the bundle for a symbol, creating it on first use.
func (m *MarketData) Symbol(symbol string) *SymbolData {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.symbols[symbol]
	if !ok {
		data = NewSymbolData(symbol, m.candleCapacity, m.tradeCapacity)
		m.symbols[symbol] = data
	}
	return data
}

// Lookup returns the bundle for a symbol without creating it.
func (m *MarketData) Lookup(symbol string) (*SymbolData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.symbols[symbol]
	return data, ok
}

// Symbols returns the tracked symbols sorted for consistent ordering.
func (m *MarketData) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, 0, len(m.symbols))
	for symbol := range m.symbols {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}

// Bind subscribes the registry to the market-data channels so producer
// updates flow into the caches.
func (m *MarketData) Bind(bus *channel.Bus) {
	bus.Subscribe(channel.KindOHLCV, m.exchange, func(ev channel.Event) {
		if up, ok := ev.Data.(domain.CandlesUpdate); ok {
			m.Symbol(ev.Symbol).HandleCandles(up.Timeframe, up.Candles, up.ReplaceAll)
		}
	})
	bus.Subscribe(channel.KindOrderBook, m.exchange, func(ev channel.Event) {
		if up, ok := ev.Data.(domain.BookUpdate); ok {
			book := m.Symbol(ev.Symbol).OrderBook()
			if up.Delta {
				book.DeltaUpdate(up.Asks, up.Bids)
			} else {
				book.Update(up.Asks, up.Bids)
			}
		}
	})
	bus.Subscribe(channel.KindRecentTrades, m.exchange, func(ev channel.Event) {
		if up, ok := ev.Data.(domain.TradesUpdate); ok {
			m.Symbol(ev.Symbol).RecentTrades().Update(up.Trades)
		}
	})
	bus.Subscribe(channel.KindTicker, m.exchange, func(ev channel.Event) {
		if ticker, ok := ev.Data.(domain.Ticker); ok {
			m.Symbol(ev.Symbol).Ticker().Update(ticker)
		}
	})
}
