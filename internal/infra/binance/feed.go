package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/infra"
	"folio_go/internal/producer"
)

const (
	defaultWSURL      = "wss://stream.binance.com:9443/stream"
	feedMaxRetries    = 10
	feedBaseDelay     = 1 * time.Second
	feedMaxDelay      = 60 * time.Second
	feedReadTimeout   = 60 * time.Second
	watchListInterval = 30 * time.Second
)

// feedCapabilities declares what this stream can serve. Balance and
// order updates need a signed listen key and are not handled here.
var feedCapabilities = map[channel.Kind]bool{
	channel.KindTicker:       true,
	channel.KindRecentTrades: true,
	channel.KindOrderBook:    true,
}

// Feed bridges the combined websocket stream into bus publishes. It
// reconnects with exponential backoff and re-reads the watch-list
// between cycles so pairs added at runtime get subscribed.
type Feed struct {
	cfg     producer.FeedConfig
	publish producer.PublishFunc

	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	subscribed map[string]bool   // unified pair -> already subscribed
	pairsBySym map[string]string // exchange symbol -> unified pair
	nextID     atomic.Int64
}

// NewFeed constructs the websocket feed. Register it on the feed
// registry under the exchange identifier.
func NewFeed(cfg producer.FeedConfig, publish producer.PublishFunc) (producer.Feed, error) {
	if publish == nil {
		return nil, fmt.Errorf("publish func is required")
	}
	if cfg.URL == "" {
		cfg.URL = defaultWSURL
	}
	return &Feed{
		cfg:        cfg,
		publish:    publish,
		subscribed: make(map[string]bool),
		pairsBySym: make(map[string]string),
	}, nil
}

// Capabilities reports the supported data kinds.
func (f *Feed) Capabilities() map[channel.Kind]bool {
	caps := make(map[channel.Kind]bool, len(feedCapabilities))
	for kind, ok := range feedCapabilities {
		caps[kind] = ok
	}
	return caps
}

// Run connects and reads until the context is cancelled, reconnecting
// with exponential backoff on failures.
func (f *Feed) Run(ctx context.Context) error {
	defer f.closeConnection()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := f.connect(ctx); err != nil {
			slog.Warn("websocket connection failed",
				slog.String("exchange", f.cfg.Exchange),
				slog.Int("retry", retryCount),
				slog.Any("error", err),
			)

			delay := calculateBackoff(retryCount)
			retryCount++
			if retryCount > feedMaxRetries {
				slog.Error("websocket max retries exceeded, resetting counter",
					slog.String("exchange", f.cfg.Exchange))
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0

		connCtx, cancel := context.WithCancel(ctx)
		go f.watchListLoop(connCtx)
		f.readLoop(connCtx)
		cancel()
	}
}

func calculateBackoff(retryCount int) time.Duration {
	delay := feedBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > feedMaxDelay {
		delay = feedMaxDelay
	}
	return delay
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	f.mu.Lock()
	f.conn = conn
	f.subscribed = make(map[string]bool)
	f.mu.Unlock()

	if err := f.syncSubscriptions(); err != nil {
		f.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("websocket connected",
		slog.String("exchange", f.cfg.Exchange),
		slog.Int("pairs", len(f.currentPairs())),
	)
	return nil
}

// currentPairs returns the live watch-list when a source is wired, else
// the configured pairs.
func (f *Feed) currentPairs() []string {
	if f.cfg.PairSource != nil {
		if pairs := f.cfg.PairSource(); len(pairs) > 0 {
			return pairs
		}
	}
	return f.cfg.Pairs
}

// syncSubscriptions subscribes any watched pair not yet subscribed on
// the current connection.
func (f *Feed) syncSubscriptions() error {
	var params []string
	f.mu.Lock()
	for _, pair := range f.currentPairs() {
		if f.subscribed[pair] {
			continue
		}
		symbol := strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
		stream := strings.ToLower(symbol)
		for _, kind := range f.cfg.Kinds {
			switch kind {
			case channel.KindTicker:
				params = append(params, stream+"@ticker")
			case channel.KindRecentTrades:
				params = append(params, stream+"@trade")
			case channel.KindOrderBook:
				params = append(params, stream+"@depth")
			}
		}
		f.subscribed[pair] = true
		f.pairsBySym[symbol] = pair
	}
	f.mu.Unlock()

	if len(params) == 0 {
		return nil
	}

	msg, err := json.Marshal(wsSubscribe{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     f.nextID.Add(1),
	})
	if err != nil {
		return err
	}
	return f.threadSafeWrite(websocket.TextMessage, msg)
}

// watchListLoop periodically re-syncs subscriptions so runtime Modify
// calls on the bus are picked up without a reconnect.
func (f *Feed) watchListLoop(ctx context.Context) {
	ticker := time.NewTicker(watchListInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.syncSubscriptions(); err != nil {
				slog.Warn("websocket subscription refresh failed",
					slog.String("exchange", f.cfg.Exchange),
					slog.Any("error", err),
				)
			}
		}
	}
}

func (f *Feed) threadSafeWrite(messageType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error",
					slog.String("exchange", f.cfg.Exchange),
					slog.Any("error", err),
				)
			}
			f.closeConnection()
			return
		}

		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(message []byte) {
	var envelope streamEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil || len(envelope.Data) == 0 {
		// Subscription acknowledgements carry no stream payload.
		return
	}

	switch {
	case strings.HasSuffix(envelope.Stream, "@ticker"):
		f.handleTicker(envelope.Data)
	case strings.HasSuffix(envelope.Stream, "@trade"):
		f.handleTrade(envelope.Data)
	case strings.HasSuffix(envelope.Stream, "@depth"):
		f.handleDepth(envelope.Data)
	}
}

func (f *Feed) handleTicker(data []byte) {
	var resp wsTicker
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Debug("ticker message parse error", slog.Any("error", err))
		return
	}

	pair, ok := f.unifiedPair(resp.Symbol)
	if !ok {
		return
	}
	last, err := decimal.NewFromString(resp.Last)
	if err != nil {
		return
	}
	bid, _ := decimal.NewFromString(resp.Bid)
	ask, _ := decimal.NewFromString(resp.Ask)
	volume, _ := decimal.NewFromString(resp.Volume)

	f.publish(channel.KindTicker, channel.Event{
		Symbol: pair,
		Data: domain.Ticker{
			Symbol:    pair,
			Last:      last,
			Bid:       bid,
			Ask:       ask,
			Volume:    volume,
			Timestamp: resp.EventTime,
		},
	})
}

func (f *Feed) handleTrade(data []byte) {
	var resp wsTrade
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Debug("trade message parse error", slog.Any("error", err))
		return
	}

	pair, ok := f.unifiedPair(resp.Symbol)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return
	}
	amount, err := decimal.NewFromString(resp.Qty)
	if err != nil {
		return
	}
	side := domain.SideBuy
	if resp.IsBuyerMaker {
		side = domain.SideSell
	}

	f.publish(channel.KindRecentTrades, channel.Event{
		Symbol: pair,
		Data: domain.TradesUpdate{
			Trades: []domain.Trade{{
				ID:        fmt.Sprintf("%d", resp.TradeID),
				Symbol:    pair,
				Price:     price,
				Amount:    amount,
				Side:      side,
				Timestamp: resp.TradeTime,
			}},
		},
	})
}

func (f *Feed) handleDepth(data []byte) {
	var resp wsDepth
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Debug("depth message parse error", slog.Any("error", err))
		return
	}

	pair, ok := f.unifiedPair(resp.Symbol)
	if !ok {
		return
	}

	f.publish(channel.KindOrderBook, channel.Event{
		Symbol: pair,
		Data: domain.BookUpdate{
			Asks:  parseLevels(resp.Asks),
			Bids:  parseLevels(resp.Bids),
			Delta: true,
		},
	})
}

func parseLevels(rows [][]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(row[1])
		if err != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Amount: amount})
	}
	return levels
}

func (f *Feed) unifiedPair(symbol string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pair, ok := f.pairsBySym[symbol]
	return pair, ok
}

func (f *Feed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
