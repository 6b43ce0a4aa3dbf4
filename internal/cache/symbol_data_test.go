package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
)

func TestSymbolDataFirstCandleUpdateReplacesAll(t *testing.T) {
	s := NewSymbolData("BTC/USDT", 10, 10)

	// Delta update on an unseen timeframe must still seed the series.
	s.HandleCandles(domain.Timeframe1h, []domain.Candle{candle(100, 1), candle(3700, 2)}, false)

	series, ok := s.CandleData(domain.Timeframe1h)
	if !ok {
		t.Fatal("expected candle cache after first update")
	}
	if series.Len() != 2 {
		t.Errorf("expected 2 candles, got %d", series.Len())
	}
}

func TestSymbolDataCandleDataNotAvailable(t *testing.T) {
	s := NewSymbolData("BTC/USDT", 10, 10)
	s.HandleCandles(domain.Timeframe1h, []domain.Candle{candle(100, 1)}, true)

	if _, ok := s.CandleData(domain.Timeframe1m); ok {
		t.Error("untracked timeframe must report not available")
	}
	tfs := s.Timeframes()
	if len(tfs) != 1 || tfs[0] != domain.Timeframe1h {
		t.Errorf("expected [1h], got %v", tfs)
	}
}

func TestSymbolDataCandlesAccessor(t *testing.T) {
	s := NewSymbolData("BTC/USDT", 10, 10)

	if _, err := s.Candles(domain.Timeframe1h); !errors.Is(err, domain.ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}

	// An initialized but empty series is not an error.
	s.HandleCandles(domain.Timeframe1h, nil, true)
	series, err := s.Candles(domain.Timeframe1h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 0 {
		t.Errorf("expected empty series, got %d", len(series))
	}
}

func TestMarketDataLazySymbolCreation(t *testing.T) {
	m := NewMarketData("binance", 10, 10)

	if _, ok := m.Lookup("BTC/USDT"); ok {
		t.Error("Lookup must not create symbols")
	}

	m.Symbol("BTC/USDT")
	if _, ok := m.Lookup("BTC/USDT"); !ok {
		t.Error("Symbol should have created the bundle")
	}
}

func TestMarketDataBindRoutesUpdates(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()

	m := NewMarketData("binance", 10, 10)
	m.Bind(bus)

	bus.Publish(channel.KindTicker, "binance", channel.Event{
		Symbol: "BTC/USDT",
		Data:   domain.Ticker{Symbol: "BTC/USDT", Last: decimal.NewFromInt(20000)},
	})
	bus.Publish(channel.KindRecentTrades, "binance", channel.Event{
		Symbol: "BTC/USDT",
		Data:   domain.TradesUpdate{Trades: []domain.Trade{trade(1)}},
	})
	bus.Publish(channel.KindOrderBook, "binance", channel.Event{
		Symbol: "BTC/USDT",
		Data: domain.BookUpdate{
			Asks: []domain.BookLevel{level(101, 1)},
			Bids: []domain.BookLevel{level(100, 1)},
		},
	})

	waitFor(t, func() bool {
		data, ok := m.Lookup("BTC/USDT")
		if !ok {
			return false
		}
		_, tickerOK := data.Ticker().Last()
		return tickerOK && data.RecentTrades().Len() == 1 && data.OrderBook().Initialized()
	})

	data, _ := m.Lookup("BTC/USDT")
	last, _ := data.Ticker().Last()
	if !last.Last.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("expected last price 20000, got %v", last.Last)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
