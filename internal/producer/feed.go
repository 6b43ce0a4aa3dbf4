package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
	"folio_go/internal/infra"
)

// FeedConfig configures one websocket feed.
type FeedConfig struct {
	Exchange string
	URL      string
	Pairs    []string
	Kinds    []channel.Kind

	// PairSource, when set, lets the feed observe runtime watch-list
	// changes: it is polled between cycles so pairs added via the channel
	// bus get subscribed without a reconnect.
	PairSource func() []string
}

// PublishFunc republishes one feed event onto the bus.
type PublishFunc func(kind channel.Kind, ev channel.Event)

// Feed is a push-based market data stream. Run blocks until the context
// is cancelled, reconnecting internally on transient failures.
type Feed interface {
	Run(ctx context.Context) error
	Capabilities() map[channel.Kind]bool
}

// FeedFactory builds a feed publishing through the given function.
// Selection happens via registry lookup, not inheritance.
type FeedFactory func(cfg FeedConfig, publish PublishFunc) (Feed, error)

// FeedRegistry maps exchange identifiers to feed constructors.
type FeedRegistry struct {
	mu        sync.RWMutex
	factories map[string]FeedFactory
}

// NewFeedRegistry creates an empty registry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{factories: make(map[string]FeedFactory)}
}

// Register adds a feed constructor for an exchange identifier.
func (r *FeedRegistry) Register(exchange string, factory FeedFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[exchange] = factory
}

// Lookup returns the registered constructor for an exchange.
func (r *FeedRegistry) Lookup(exchange string) (FeedFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[exchange]
	return factory, ok
}

// FeedBridge attaches a websocket feed to the channel bus. The feed runs
// on its own goroutine so a slow or blocking stream cannot stall the
// polling loops or the valuation engine; it hands data back exclusively
// through the bus's thread-safe enqueue.
type FeedBridge struct {
	exchangeName string
	feed         Feed
	enabled      []channel.Kind

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFeedBridge looks up and constructs the feed for cfg.Exchange. A
// missing registration or construction failure returns an error wrapping
// ErrFeedUnavailable; the caller logs it and continues without this feed.
func NewFeedBridge(registry *FeedRegistry, cfg FeedConfig, bus *channel.Bus) (*FeedBridge, error) {
	factory, ok := registry.Lookup(cfg.Exchange)
	if !ok {
		return nil, fmt.Errorf("no feed registered for %q: %w", cfg.Exchange, domain.ErrFeedUnavailable)
	}

	publish := func(kind channel.Kind, ev channel.Event) {
		bus.Publish(kind, cfg.Exchange, ev)
	}
	feed, err := factory(cfg, publish)
	if err != nil {
		return nil, fmt.Errorf("constructing feed for %q: %w", cfg.Exchange, err)
	}

	caps := feed.Capabilities()
	var enabled []channel.Kind
	for _, kind := range cfg.Kinds {
		if caps[kind] {
			enabled = append(enabled, kind)
			continue
		}
		slog.Warn("websocket capability unsupported, skipping",
			slog.String("exchange", cfg.Exchange),
			slog.String("kind", string(kind)),
		)
	}

	return &FeedBridge{
		exchangeName: cfg.Exchange,
		feed:         feed,
		enabled:      enabled,
	}, nil
}

// Enabled returns the capabilities the feed actually serves.
func (b *FeedBridge) Enabled() []channel.Kind {
	return append([]channel.Kind(nil), b.enabled...)
}

// Running reports whether the feed goroutine is active.
func (b *FeedBridge) Running() bool {
	return b.running.Load()
}

// Start launches the feed on a dedicated goroutine. Idempotent. With no
// enabled capability the adapter logs an error and stays stopped.
func (b *FeedBridge) Start(ctx context.Context) {
	if len(b.enabled) == 0 {
		slog.Error("websocket feed is not handling anything, it will not be started",
			slog.String("exchange", b.exchangeName),
		)
		return
	}
	if !b.running.CompareAndSwap(false, true) {
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	infra.GlobalMetrics.IncrementFeeds()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer infra.GlobalMetrics.DecrementFeeds()
		if err := b.feed.Run(ctx); err != nil && ctx.Err() == nil {
			infra.GlobalMetrics.RecordError()
			slog.Error("websocket feed stopped",
				slog.String("exchange", b.exchangeName),
				slog.Any("error", err),
			)
		}
	}()
}

// Stop detaches the feed and releases its goroutine. Idempotent.
func (b *FeedBridge) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}
