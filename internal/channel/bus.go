package channel

import (
	"log/slog"
	"sort"
	"sync"

	"folio_go/internal/infra"
)

// Kind identifies the data kind carried by a channel.
type Kind string

const (
	KindTicker       Kind = "ticker"
	KindOHLCV        Kind = "ohlcv"
	KindOrderBook    Kind = "order_book"
	KindRecentTrades Kind = "recent_trades"
	KindBalance      Kind = "balance"
	KindOrders       Kind = "orders"
	KindTrades       Kind = "trades"
)

// Event is one published payload. Data holds a kind-specific payload
// struct; handlers type-assert on it.
type Event struct {
	Kind     Kind
	Exchange string
	Symbol   string
	Data     any
}

// Handler consumes one published event. Handlers run on the channel's
// dispatch goroutine; a panic is recovered and logged without
// unsubscribing the handler or stopping delivery to others.
type Handler func(Event)

const defaultQueueSize = 256

// Channel is the addressable publish point for one (kind, exchange).
// Producers enqueue onto it from any goroutine; a single dispatch
// goroutine delivers to subscribers, so delivery order to a given
// subscriber matches publish order from a given producer.
type Channel struct {
	kind     Kind
	exchange string

	mu       sync.RWMutex
	handlers []Handler
	watch    map[string]struct{}

	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func newChannel(kind Kind, exchange string, queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	c := &Channel{
		kind:     kind,
		exchange: exchange,
		watch:    make(map[string]struct{}),
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Publish enqueues the event for asynchronous delivery to all current
// subscribers. It never blocks the publisher beyond the handoff: when the
// queue is full the event is dropped and counted.
func (c *Channel) Publish(ev Event) {
	ev.Kind = c.kind
	ev.Exchange = c.exchange
	select {
	case c.queue <- ev:
		infra.GlobalMetrics.RecordEventPublished()
	case <-c.done:
	default:
		infra.GlobalMetrics.RecordEventDropped()
		slog.Warn("channel queue full, dropping event",
			slog.String("kind", string(c.kind)),
			slog.String("exchange", c.exchange),
			slog.String("symbol", ev.Symbol),
		)
	}
}

// Subscribe registers a handler invoked once per published payload.
func (c *Channel) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Modify mutates the active watch-list at runtime. Added and removed
// pairs are applied as a single indivisible step; producers observe the
// updated list on their next cycle.
func (c *Channel) Modify(added, removed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pair := range added {
		c.watch[pair] = struct{}{}
	}
	for _, pair := range removed {
		delete(c.watch, pair)
	}
}

// WatchList returns a sorted snapshot of the currently watched pairs.
func (c *Channel) WatchList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pairs := make([]string, 0, len(c.watch))
	for pair := range c.watch {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}

// Watches reports whether the pair is on the watch-list.
func (c *Channel) Watches(pair string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.watch[pair]
	return ok
}

func (c *Channel) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.queue:
			c.mu.RLock()
			handlers := make([]Handler, len(c.handlers))
			copy(handlers, c.handlers)
			c.mu.RUnlock()
			for _, h := range handlers {
				c.deliver(h, ev)
			}
		}
	}
}

func (c *Channel) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			infra.GlobalMetrics.RecordError()
			slog.Error("channel handler panic recovered",
				slog.String("kind", string(c.kind)),
				slog.String("exchange", c.exchange),
				slog.Any("panic", r),
			)
		}
	}()
	h(ev)
}

func (c *Channel) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

type key struct {
	kind     Kind
	exchange string
}

// Bus owns all channels of one process. Channels are created on first use
// and live until the bus is closed with the exchange session. Pass the bus
// handle through constructors; there is no ambient registry.
type Bus struct {
	mu        sync.Mutex
	channels  map[key]*Channel
	queueSize int
}

// NewBus creates an empty bus. queueSize <= 0 uses the default.
func NewBus(queueSize int) *Bus {
	return &Bus{
		channels:  make(map[key]*Channel),
		queueSize: queueSize,
	}
}

// Get returns the channel for (kind, exchange), creating it on first use.
func (b *Bus) Get(kind Kind, exchange string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{kind: kind, exchange: exchange}
	c, ok := b.channels[k]
	if !ok {
		c = newChannel(kind, exchange, b.queueSize)
		b.channels[k] = c
	}
	return c
}

// Publish enqueues onto the (kind, exchange) channel.
func (b *Bus) Publish(kind Kind, exchange string, ev Event) {
	b.Get(kind, exchange).Publish(ev)
}

// Subscribe registers a handler on the (kind, exchange) channel.
func (b *Bus) Subscribe(kind Kind, exchange string, h Handler) {
	b.Get(kind, exchange).Subscribe(h)
}

// Modify mutates the watch-list of the (kind, exchange) channel.
func (b *Bus) Modify(kind Kind, exchange string, added, removed []string) {
	b.Get(kind, exchange).Modify(added, removed)
}

// Close tears down every channel. Idempotent; events still queued are
// discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.channels {
		c.close()
	}
}
