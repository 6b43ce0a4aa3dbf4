package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"folio_go/internal/domain"
	"folio_go/internal/infra"
)

const (
	defaultRestURL = "https://api.binance.com"
	fetchRetries   = 3
)

// Client is the REST-side exchange collaborator. It handles symbol
// discovery and pull-based market data; authentication-only endpoints
// are out of scope for this engine.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	symbols map[string]string // unified pair -> exchange symbol
	pairs   map[string]string // exchange symbol -> unified pair
}

// NewClient builds the client and loads the listed symbols once. A
// discovery failure is fatal: without the symbol table no pair can be
// resolved.
func NewClient(ctx context.Context, name, baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultRestURL
	}
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		symbols:    make(map[string]string),
		pairs:      make(map[string]string),
	}
	if err := c.loadSymbols(ctx); err != nil {
		return nil, fmt.Errorf("symbol discovery failed: %w", err)
	}
	return c, nil
}

// Name returns the exchange identifier.
func (c *Client) Name() string {
	return c.name
}

// SymbolExists reports whether the unified pair is listed.
func (c *Client) SymbolExists(pair string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.symbols[pair]
	return ok
}

// GetCandles fetches the most recent candles for a pair and timeframe.
func (c *Client) GetCandles(ctx context.Context, pair string, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	symbol, err := c.exchangeSymbol(pair)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", string(tf))
	query.Set("limit", fmt.Sprintf("%d", limit))

	body, err := c.fetch(ctx, "/api/v3/klines", query)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding klines for %s: %w", pair, err)
	}
	return parseKlines(rows)
}

// GetRecentTrades fetches recent trades across the given pairs, at most
// limit per pair.
func (c *Client) GetRecentTrades(ctx context.Context, pairs []string, limit int) ([]domain.Trade, error) {
	var result []domain.Trade
	var lastErr error
	for _, pair := range pairs {
		trades, err := c.recentTrades(ctx, pair, limit)
		if err != nil {
			lastErr = err
			continue
		}
		result = append(result, trades...)
	}
	if result == nil && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// GetTicker fetches the latest price snapshot for a pair.
func (c *Client) GetTicker(ctx context.Context, pair string) (domain.Ticker, error) {
	symbol, err := c.exchangeSymbol(pair)
	if err != nil {
		return domain.Ticker{}, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	body, err := c.fetch(ctx, "/api/v3/ticker/24hr", query)
	if err != nil {
		return domain.Ticker{}, err
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Ticker{}, fmt.Errorf("decoding ticker for %s: %w", pair, err)
	}
	return parseTicker(pair, resp)
}

func (c *Client) recentTrades(ctx context.Context, pair string, limit int) ([]domain.Trade, error) {
	symbol, err := c.exchangeSymbol(pair)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("limit", fmt.Sprintf("%d", limit))

	body, err := c.fetch(ctx, "/api/v3/trades", query)
	if err != nil {
		return nil, err
	}

	var rows []tradeResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding trades for %s: %w", pair, err)
	}

	trades := make([]domain.Trade, 0, len(rows))
	for _, row := range rows {
		trade, err := parseTrade(pair, row)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (c *Client) loadSymbols(ctx context.Context) error {
	body, err := c.fetch(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return err
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("decoding exchange info: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pair := s.BaseAsset + "/" + s.QuoteAsset
		c.symbols[pair] = s.Symbol
		c.pairs[s.Symbol] = pair
	}
	slog.Info("exchange symbols loaded",
		slog.String("exchange", c.name),
		slog.Int("symbols", len(c.symbols)),
	)
	return nil
}

func (c *Client) exchangeSymbol(pair string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbol, ok := c.symbols[pair]
	if !ok {
		return "", fmt.Errorf("%q: %w", pair, domain.ErrInvalidSymbol)
	}
	return symbol, nil
}

// fetch performs a GET with retry and exponential backoff.
func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	for i := 0; i < fetchRetries; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s
			delay := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doFetch(ctx, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err
		slog.Warn("exchange fetch attempt failed",
			slog.String("exchange", c.name),
			slog.String("path", path),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)
	}
	return nil, domain.NewNetworkError("fetch "+path, lastErr)
}

func (c *Client) doFetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseKlines(rows [][]any) ([]domain.Candle, error) {
	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row with %d fields", len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v", row[0])
		}
		values := make([]decimal.Decimal, 5)
		for i := 1; i <= 5; i++ {
			raw, ok := row[i].(string)
			if !ok {
				return nil, fmt.Errorf("malformed kline field %v", row[i])
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("malformed kline value %q: %w", raw, err)
			}
			values[i-1] = value
		}
		candles = append(candles, domain.Candle{
			OpenTime: int64(openTime) / 1000,
			Open:     values[0],
			High:     values[1],
			Low:      values[2],
			Close:    values[3],
			Volume:   values[4],
		})
	}
	return candles, nil
}

func parseTicker(pair string, resp tickerResponse) (domain.Ticker, error) {
	last, err := decimal.NewFromString(resp.LastPrice)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("malformed last price %q: %w", resp.LastPrice, err)
	}
	bid, _ := decimal.NewFromString(resp.BidPrice)
	ask, _ := decimal.NewFromString(resp.AskPrice)
	volume, _ := decimal.NewFromString(resp.Volume)
	return domain.Ticker{
		Symbol:    pair,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		Volume:    volume,
		Timestamp: resp.CloseTime,
	}, nil
}

func parseTrade(pair string, row tradeResponse) (domain.Trade, error) {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("malformed trade price %q: %w", row.Price, err)
	}
	amount, err := decimal.NewFromString(row.Qty)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("malformed trade qty %q: %w", row.Qty, err)
	}
	side := domain.SideBuy
	if row.IsBuyerMaker {
		side = domain.SideSell
	}
	return domain.Trade{
		ID:        fmt.Sprintf("%d", row.ID),
		Symbol:    pair,
		Price:     price,
		Amount:    amount,
		Side:      side,
		Timestamp: row.Time,
	}, nil
}
