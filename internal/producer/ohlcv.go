package producer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/infra"
)

// CandleFetchLimit keeps each refresh well below the candle cache
// capacity; the first fetch for a timeframe replaces the whole series.
const CandleFetchLimit = 5

// OHLCVUpdater periodically fetches candles for every watched pair and
// publishes them on the OHLCV channel, one independent task per
// timeframe. Fetches align to the timeframe boundary rather than
// drifting: each cycle sleeps cadence minus elapsed, clamped to zero.
type OHLCVUpdater struct {
	exchange   domain.Exchange
	bus        *channel.Bus
	timeframes []domain.Timeframe
	limit      int

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewOHLCVUpdater creates the updater for the given timeframes.
func NewOHLCVUpdater(exchange domain.Exchange, bus *channel.Bus, timeframes []domain.Timeframe) *OHLCVUpdater {
	return &OHLCVUpdater{
		exchange:   exchange,
		bus:        bus,
		timeframes: append([]domain.Timeframe(nil), timeframes...),
		limit:      CandleFetchLimit,
	}
}

// Start launches one refresh task per timeframe.
func (u *OHLCVUpdater) Start(ctx context.Context) {
	for _, tf := range u.timeframes {
		u.wg.Add(1)
		go u.watch(ctx, tf)
	}
}

// Stop requests a cooperative stop and waits for in-flight fetches to
// finish.
func (u *OHLCVUpdater) Stop() {
	u.stopped.Store(true)
	u.wg.Wait()
}

func (u *OHLCVUpdater) watch(ctx context.Context, tf domain.Timeframe) {
	defer u.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ohlcv watcher panic recovered",
				slog.String("timeframe", string(tf)),
				slog.Any("panic", r),
			)
		}
	}()

	cadence := tf.Duration()
	if cadence <= 0 {
		slog.Error("unknown timeframe, ohlcv watcher not started", slog.String("timeframe", string(tf)))
		return
	}

	firstLoad := make(map[string]bool)
	for !u.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		started := time.Now()
		if err := u.refresh(ctx, tf, firstLoad); err != nil {
			infra.GlobalMetrics.RecordFetchFailure()
			slog.Error("failed to update ohlcv data",
				slog.String("exchange", u.exchange.Name()),
				slog.String("timeframe", string(tf)),
				slog.Any("error", err),
			)
		}

		if !sleep(ctx, cadence-time.Since(started)) {
			return
		}
	}
}

// refresh fetches candles for all currently watched pairs and publishes
// them. The watch-list is re-read every cycle so runtime Modify calls are
// observed on the next cycle.
func (u *OHLCVUpdater) refresh(ctx context.Context, tf domain.Timeframe, firstLoad map[string]bool) error {
	ohlcv := u.bus.Get(channel.KindOHLCV, u.exchange.Name())
	var lastErr error
	for _, pair := range ohlcv.WatchList() {
		candles, err := u.exchange.GetCandles(ctx, pair, tf, u.limit)
		if err != nil {
			lastErr = err
			continue
		}
		ohlcv.Publish(channel.Event{
			Symbol: pair,
			Data: domain.CandlesUpdate{
				Timeframe:  tf,
				Candles:    candles,
				ReplaceAll: !firstLoad[pair],
			},
		})
		firstLoad[pair] = true
	}
	return lastErr
}

// sleep waits for d (clamped to zero) or until the context is cancelled.
// Returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
