package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies a candle interval (e.g. "1m", "1h").
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the interval length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Candle is one OHLCV entry. OpenTime is the candle open in unix seconds;
// two candles with the same OpenTime describe the same (possibly still
// forming) interval.
type Candle struct {
	OpenTime int64           `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Trade is a single executed trade on a pair.
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Side      string          `json:"side"` // "BUY", "SELL"
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Ticker is the latest price snapshot for a pair.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    decimal.Decimal `json:"volume"` // 24h volume
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// CandlesUpdate is the payload published on the OHLCV channel.
type CandlesUpdate struct {
	Timeframe  Timeframe
	Candles    []Candle
	ReplaceAll bool
}

// BookUpdate is the payload published on the order book channel.
// Delta updates apply incremental level changes; a zero amount removes
// the level.
type BookUpdate struct {
	Asks  []BookLevel
	Bids  []BookLevel
	Delta bool
}

// TradesUpdate is the payload published on the recent trades channel.
type TradesUpdate struct {
	Trades []Trade
}

// BalanceUpdate is the payload published on the balance channel.
type BalanceUpdate struct {
	Currency string
	Total    decimal.Decimal
	Free     decimal.Decimal
	Used     decimal.Decimal
}
