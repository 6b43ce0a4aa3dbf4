package domain

import "context"

// Exchange is the REST-side collaborator the sync engine pulls data from.
// Implementations handle authentication, rate limiting and symbol discovery.
type Exchange interface {
	Name() string

	// SymbolExists reports whether the pair is listed on this exchange.
	SymbolExists(pair string) bool

	// GetCandles fetches the most recent candles for a pair and timeframe.
	GetCandles(ctx context.Context, pair string, tf Timeframe, limit int) ([]Candle, error)

	// GetRecentTrades fetches recent trades across the given pairs,
	// at most limit per pair.
	GetRecentTrades(ctx context.Context, pairs []string, limit int) ([]Trade, error)

	// GetTicker fetches the latest price snapshot for a pair.
	GetTicker(ctx context.Context, pair string) (Ticker, error)
}

// SymbolChecker is the slice of Exchange the valuation engine needs.
type SymbolChecker interface {
	SymbolExists(pair string) bool
}
