package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"folio_go/internal/account"
	"folio_go/internal/cache"
	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/infra"
	"folio_go/internal/infra/binance"
	"folio_go/internal/infra/storage"
	"folio_go/internal/producer"
)

// feedKinds are the data kinds the websocket feed is asked to serve;
// unsupported ones fall back to the polling updaters.
var feedKinds = []channel.Kind{
	channel.KindTicker,
	channel.KindRecentTrades,
	channel.KindOrderBook,
}

// App wires the channel bus, market caches, valuation engine, polling
// updaters and the websocket feed for one exchange.
type App struct {
	cfg    *infra.Config
	logger *slog.Logger

	bus        *channel.Bus
	exchange   *binance.Client
	marketData *cache.MarketData
	personal   *account.PersonalData
	prof       *account.Profitability
	store      *storage.Store

	ohlcvUpdater  *producer.OHLCVUpdater
	tradesUpdater *producer.TradesUpdater
	feedBridge    *producer.FeedBridge
}

// New loads the configuration and constructs every component. Nothing
// is started yet; call Run.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	exchangeName := cfg.Exchange.Name

	var store *storage.Store
	if cfg.Storage.Path != "" {
		store, err = storage.NewStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		if _, err := store.BeginSession(exchangeName, cfg.Exchange.ReferenceMarket); err != nil {
			return nil, fmt.Errorf("starting session: %w", err)
		}
	}

	bus := channel.NewBus(0)

	client, err := binance.NewClient(ctx, exchangeName, cfg.Exchange.RestURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to exchange: %w", err)
	}

	marketData := cache.NewMarketData(exchangeName, cfg.Cache.MaxCandles, cfg.Cache.MaxRecentTrades)
	marketData.Bind(bus)

	portfolio := domain.NewPortfolio()
	prof := account.NewProfitability(exchangeName, cfg.Exchange.ReferenceMarket,
		cfg.Exchange.Pairs, client, bus, portfolio)
	prof.Bind(bus)

	var recorder account.SnapshotRecorder
	if store != nil {
		recorder = store
	}
	personal, err := account.NewPersonalData(exchangeName, bus, portfolio, prof, recorder)
	if err != nil {
		return nil, fmt.Errorf("creating account aggregator: %w", err)
	}
	personal.Bind(bus)

	for _, kind := range []channel.Kind{
		channel.KindTicker,
		channel.KindOHLCV,
		channel.KindOrderBook,
		channel.KindRecentTrades,
	} {
		bus.Modify(kind, exchangeName, cfg.Exchange.Pairs, nil)
	}

	timeframes, err := parseTimeframes(cfg.Exchange.Timeframes)
	if err != nil {
		return nil, err
	}

	refresh := producer.DefaultTradesRefresh
	if cfg.Updater.TradesRefreshSec > 0 {
		refresh = time.Duration(cfg.Updater.TradesRefreshSec) * time.Second
	}

	registry := producer.NewFeedRegistry()
	registry.Register("binance", binance.NewFeed)

	feedBridge, err := producer.NewFeedBridge(registry, producer.FeedConfig{
		Exchange: exchangeName,
		URL:      cfg.Exchange.WSURL,
		Pairs:    cfg.Exchange.Pairs,
		Kinds:    feedKinds,
		PairSource: func() []string {
			return bus.Get(channel.KindTicker, exchangeName).WatchList()
		},
	}, bus)
	if err != nil {
		slog.Warn("websocket feed unavailable, polling only",
			slog.String("exchange", exchangeName),
			slog.Any("error", err),
		)
		feedBridge = nil
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		bus:           bus,
		exchange:      client,
		marketData:    marketData,
		personal:      personal,
		prof:          prof,
		store:         store,
		ohlcvUpdater:  producer.NewOHLCVUpdater(client, bus, timeframes),
		tradesUpdater: producer.NewTradesUpdater(client, bus, refresh),
		feedBridge:    feedBridge,
	}, nil
}

// Run starts the updaters and the websocket feed, then blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("starting",
		slog.String("app", a.cfg.App.Name),
		slog.String("version", a.cfg.App.Version),
		slog.String("exchange", a.cfg.Exchange.Name),
		slog.Any("pairs", a.cfg.Exchange.Pairs),
	)

	a.ohlcvUpdater.Start(ctx)
	a.tradesUpdater.Start(ctx)
	if a.feedBridge != nil {
		a.feedBridge.Start(ctx)
	}

	<-ctx.Done()
	return nil
}

// Stop shuts everything down in reverse dependency order.
func (a *App) Stop() {
	if a.feedBridge != nil {
		a.feedBridge.Stop()
	}
	a.tradesUpdater.Stop()
	a.ohlcvUpdater.Stop()
	a.bus.Close()

	metrics := infra.GlobalMetrics.Snapshot()
	slog.Info("stopped",
		slog.Uint64("events_published", metrics.EventsPublished),
		slog.Uint64("events_dropped", metrics.EventsDropped),
		slog.Uint64("recomputes", metrics.Recomputes),
		slog.Uint64("fetch_failures", metrics.FetchFailures),
	)
}

// Profitability exposes the valuation engine, mainly for inspection.
func (a *App) Profitability() *account.Profitability {
	return a.prof
}

// MarketData exposes the per-symbol caches.
func (a *App) MarketData() *cache.MarketData {
	return a.marketData
}

// PersonalData exposes the account aggregator.
func (a *App) PersonalData() *account.PersonalData {
	return a.personal
}

func parseTimeframes(raw []string) ([]domain.Timeframe, error) {
	timeframes := make([]domain.Timeframe, 0, len(raw))
	for _, s := range raw {
		tf := domain.Timeframe(s)
		if tf.Duration() == 0 {
			return nil, fmt.Errorf("unknown timeframe %q", s)
		}
		timeframes = append(timeframes, tf)
	}
	return timeframes, nil
}
