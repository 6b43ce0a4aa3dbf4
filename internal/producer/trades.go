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

const (
	// MaxOldTradesToFetch bounds the one-shot warm-up backfill.
	MaxOldTradesToFetch = 100

	// TradesFetchLimit is the per-pair limit of the steady-state loop.
	TradesFetchLimit = 10

	// DefaultTradesRefresh is the steady-state cadence.
	DefaultTradesRefresh = 2 * time.Second
)

// TradesUpdater polls recent trades for every watched pair and publishes
// them on the recent trades channel. A warm-up backfill runs once before
// the steady-state loop.
type TradesUpdater struct {
	exchange domain.Exchange
	bus      *channel.Bus
	refresh  time.Duration

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewTradesUpdater creates the updater. refresh <= 0 uses the default.
func NewTradesUpdater(exchange domain.Exchange, bus *channel.Bus, refresh time.Duration) *TradesUpdater {
	if refresh <= 0 {
		refresh = DefaultTradesRefresh
	}
	return &TradesUpdater{
		exchange: exchange,
		bus:      bus,
		refresh:  refresh,
	}
}

// Start launches the backfill and the steady-state loop.
func (u *TradesUpdater) Start(ctx context.Context) {
	u.wg.Add(1)
	go u.run(ctx)
}

// Stop requests a cooperative stop and waits for the in-flight fetch to
// finish.
func (u *TradesUpdater) Stop() {
	u.stopped.Store(true)
	u.wg.Wait()
}

func (u *TradesUpdater) run(ctx context.Context) {
	defer u.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trades updater panic recovered", slog.Any("panic", r))
		}
	}()

	if err := u.refreshOnce(ctx, MaxOldTradesToFetch); err != nil {
		infra.GlobalMetrics.RecordFetchFailure()
		slog.Error("failed to backfill old trades",
			slog.String("exchange", u.exchange.Name()),
			slog.Any("error", err),
		)
	}

	for !u.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		started := time.Now()
		if err := u.refreshOnce(ctx, TradesFetchLimit); err != nil {
			infra.GlobalMetrics.RecordFetchFailure()
			slog.Error("failed to update trades",
				slog.String("exchange", u.exchange.Name()),
				slog.Any("error", err),
			)
		}

		if !sleep(ctx, u.refresh-time.Since(started)) {
			return
		}
	}
}

func (u *TradesUpdater) refreshOnce(ctx context.Context, limit int) error {
	trades := u.bus.Get(channel.KindRecentTrades, u.exchange.Name())
	pairs := trades.WatchList()
	if len(pairs) == 0 {
		return nil
	}

	fetched, err := u.exchange.GetRecentTrades(ctx, pairs, limit)
	if err != nil {
		return err
	}
	if len(fetched) == 0 {
		return nil
	}

	for symbol, batch := range groupBySymbol(fetched) {
		trades.Publish(channel.Event{
			Symbol: symbol,
			Data:   domain.TradesUpdate{Trades: batch},
		})
	}
	return nil
}

func groupBySymbol(trades []domain.Trade) map[string][]domain.Trade {
	result := make(map[string][]domain.Trade)
	for _, trade := range trades {
		result[trade.Symbol] = append(result[trade.Symbol], trade)
	}
	return result
}
