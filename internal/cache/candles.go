package cache

import (
	"sync"

	"folio_go/internal/domain"
)

// DefaultMaxCandles bounds each per-timeframe candle series.
const DefaultMaxCandles = 500

// Candles is the bounded candle series for one (symbol, timeframe).
// Oldest candles are evicted first when capacity is exceeded.
type Candles struct {
	mu          sync.RWMutex
	capacity    int
	candles     []domain.Candle
	initialized bool
}

// NewCandles creates an empty series. capacity <= 0 uses the default.
func NewCandles(capacity int) *Candles {
	if capacity <= 0 {
		capacity = DefaultMaxCandles
	}
	return &Candles{capacity: capacity}
}

// ReplaceAll overwrites the whole series, used on first load or resync.
// Only the newest capacity candles are kept.
func (c *Candles) ReplaceAll(series []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(series) > c.capacity {
		series = series[len(series)-c.capacity:]
	}
	c.candles = append(c.candles[:0], series...)
	c.initialized = true
}

// AddNew appends or merges the most recent candle. A candle whose open
// time matches the last stored candle is a still-forming update and
// replaces it in place; a later open time appends, evicting the oldest
// candle when capacity is exceeded. Earlier open times are stale and
// ignored.
func (c *Candles) AddNew(candle domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	if n := len(c.candles); n > 0 {
		last := c.candles[n-1]
		switch {
		case candle.OpenTime == last.OpenTime:
			c.candles[n-1] = candle
			return
		case candle.OpenTime < last.OpenTime:
			return
		}
	}
	c.candles = append(c.candles, candle)
	if len(c.candles) > c.capacity {
		c.candles = c.candles[len(c.candles)-c.capacity:]
	}
}

// Snapshot returns a copy of the series, oldest first.
func (c *Candles) Snapshot() []domain.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]domain.Candle, len(c.candles))
	copy(result, c.candles)
	return result
}

// Last returns the most recent candle and whether one exists.
func (c *Candles) Last() (domain.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.candles) == 0 {
		return domain.Candle{}, false
	}
	return c.candles[len(c.candles)-1], true
}

// Len returns the number of stored candles.
func (c *Candles) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.candles)
}

// Initialized distinguishes "never received" from "received a value".
func (c *Candles) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}
