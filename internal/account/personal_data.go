package account

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
)

// SnapshotRecorder persists profitability snapshots when the state
// meaningfully changes. Implemented by the storage layer.
type SnapshotRecorder interface {
	RecordSnapshot(state State) error
}

// PersonalData owns the portfolio, orders and trades state containers for
// one exchange session and applies account update events to them. It is
// load-bearing for all downstream valuation: a construction failure
// disables trading for the session.
type PersonalData struct {
	exchangeName  string
	bus           *channel.Bus
	profitability *Profitability
	recorder      SnapshotRecorder

	mu        sync.RWMutex
	portfolio *domain.Portfolio
	orders    map[string]domain.Order
	trades    []domain.Trade
}

// NewPersonalData creates the aggregator. portfolio must be the same
// instance the profitability engine reads; recorder may be nil.
func NewPersonalData(exchangeName string, bus *channel.Bus, portfolio *domain.Portfolio,
	profitability *Profitability, recorder SnapshotRecorder) (*PersonalData, error) {
	if bus == nil || portfolio == nil || profitability == nil {
		return nil, errors.New("personal data requires bus, portfolio and profitability")
	}
	return &PersonalData{
		exchangeName:  exchangeName,
		bus:           bus,
		profitability: profitability,
		recorder:      recorder,
		portfolio:     portfolio,
		orders:        make(map[string]domain.Order),
	}, nil
}

// Bind subscribes the aggregator to balance update events.
func (d *PersonalData) Bind(bus *channel.Bus) {
	bus.Subscribe(channel.KindBalance, d.exchangeName, func(ev channel.Event) {
		if up, ok := ev.Data.(domain.BalanceUpdate); ok {
			if err := d.ApplyBalanceUpdate(up.Currency, up.Total, up.Free, up.Used); err != nil {
				slog.Error("balance update rejected",
					slog.String("exchange", d.exchangeName),
					slog.String("currency", up.Currency),
					slog.Any("error", err),
				)
			}
		}
	})
}

// ApplyBalanceUpdate replaces the stored entry for the currency and
// triggers a valuation recompute. total == free + used is enforced as a
// precondition on the input; a violation aborts without touching the
// portfolio or publishing a new profitability state.
func (d *PersonalData) ApplyBalanceUpdate(currency string, total, free, used decimal.Decimal) error {
	balance := domain.Balance{
		Currency: currency,
		Free:     free,
		Used:     used,
		Total:    total,
	}

	if err := d.portfolio.Set(balance); err != nil {
		return err
	}

	if d.profitability.HandleBalanceUpdate() {
		d.recordSnapshot()
	}
	return nil
}

// HandleOrdersUpdate stores the latest order states. The richer order
// state machine is an external collaborator; this is a validated
// pass-through.
func (d *PersonalData) HandleOrdersUpdate(orders []domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, order := range orders {
		d.orders[order.ID] = order
	}
}

// HandleTradesUpdate appends executed trades for this session.
func (d *PersonalData) HandleTradesUpdate(trades []domain.Trade) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trades = append(d.trades, trades...)
}

// OpenOrders returns the currently open orders.
func (d *PersonalData) OpenOrders() []domain.Order {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]domain.Order, 0, len(d.orders))
	for _, order := range d.orders {
		if order.IsOpen() {
			result = append(result, order)
		}
	}
	return result
}

// ResolveOrderPortfolio returns the order's linked portfolio if it
// declares one (isolated-margin-style bookkeeping), else the session's
// shared portfolio.
func (d *PersonalData) ResolveOrderPortfolio(order domain.Order) *domain.Portfolio {
	if order.LinkedPortfolio != nil {
		return order.LinkedPortfolio
	}
	return d.portfolio
}

// Portfolio returns the session's shared portfolio.
func (d *PersonalData) Portfolio() *domain.Portfolio {
	return d.portfolio
}

func (d *PersonalData) recordSnapshot() {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordSnapshot(d.profitability.State()); err != nil {
		slog.Warn("failed to record profitability snapshot",
			slog.String("exchange", d.exchangeName),
			slog.Any("error", err),
		)
	}
}
