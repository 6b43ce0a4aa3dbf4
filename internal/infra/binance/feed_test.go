package binance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/producer"
)

func newTestFeed(t *testing.T) (*Feed, chan channel.Event) {
	t.Helper()
	events := make(chan channel.Event, 16)
	publish := func(kind channel.Kind, ev channel.Event) {
		ev.Kind = kind
		events <- ev
	}
	feed, err := NewFeed(producer.FeedConfig{
		Exchange: "binance",
		Pairs:    []string{"BTC/USDT"},
		Kinds:    []channel.Kind{channel.KindTicker, channel.KindRecentTrades, channel.KindOrderBook},
	}, publish)
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}
	f := feed.(*Feed)
	f.pairsBySym["BTCUSDT"] = "BTC/USDT"
	return f, events
}

func receive(t *testing.T, events chan channel.Event) channel.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return channel.Event{}
	}
}

func TestFeedCapabilities(t *testing.T) {
	f, _ := newTestFeed(t)

	caps := f.Capabilities()
	if !caps[channel.KindTicker] || !caps[channel.KindRecentTrades] || !caps[channel.KindOrderBook] {
		t.Errorf("expected market data capabilities, got %v", caps)
	}
	if caps[channel.KindBalance] {
		t.Error("balance requires a signed stream and must not be advertised")
	}
}

func TestHandleMessageTicker(t *testing.T) {
	f, events := newTestFeed(t)

	f.handleMessage([]byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","c":"42000.5","b":"42000.0","a":"42001.0","v":"1234.5"}}`))

	ev := receive(t, events)
	if ev.Kind != channel.KindTicker || ev.Symbol != "BTC/USDT" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	ticker := ev.Data.(domain.Ticker)
	if !ticker.Last.Equal(decimal.NewFromFloat(42000.5)) {
		t.Errorf("expected last 42000.5, got %v", ticker.Last)
	}
	if ticker.Timestamp != 1700000000123 {
		t.Errorf("expected event time, got %d", ticker.Timestamp)
	}
}

func TestHandleMessageTrade(t *testing.T) {
	f, events := newTestFeed(t)

	f.handleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","t":99,"p":"42000","q":"0.25","T":1700000000456,"m":true}}`))

	ev := receive(t, events)
	if ev.Kind != channel.KindRecentTrades {
		t.Fatalf("unexpected kind: %s", ev.Kind)
	}
	up := ev.Data.(domain.TradesUpdate)
	if len(up.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(up.Trades))
	}
	trade := up.Trades[0]
	if trade.ID != "99" || trade.Side != domain.SideSell {
		t.Errorf("unexpected trade: %+v", trade)
	}
}

func TestHandleMessageDepthIsDelta(t *testing.T) {
	f, events := newTestFeed(t)

	f.handleMessage([]byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT","a":[["42001","1.5"],["42002","0"]],"b":[["42000","2.0"]]}}`))

	ev := receive(t, events)
	up := ev.Data.(domain.BookUpdate)
	if !up.Delta {
		t.Error("depth stream messages are incremental")
	}
	if len(up.Asks) != 2 || len(up.Bids) != 1 {
		t.Errorf("expected 2 asks and 1 bid, got %d/%d", len(up.Asks), len(up.Bids))
	}
	if !up.Asks[1].Amount.IsZero() {
		t.Error("zero amounts must survive parsing, they signal level removal")
	}
}

func TestHandleMessageIgnoresUnknownSymbolAndAcks(t *testing.T) {
	f, events := newTestFeed(t)

	// Subscription acknowledgement carries no stream payload.
	f.handleMessage([]byte(`{"result":null,"id":1}`))
	// Unknown symbol: never subscribed, no reverse mapping.
	f.handleMessage([]byte(`{"stream":"ethusdt@ticker","data":{"e":"24hrTicker","s":"ETHUSDT","c":"3000"}}`))
	// Garbage.
	f.handleMessage([]byte(`not json`))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
