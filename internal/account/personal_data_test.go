package account

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio_go/internal/channel"
	"folio_go/internal/domain"
)

type recordingStore struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingStore) RecordSnapshot(state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newTestPersonalData(t *testing.T, bus *channel.Bus, recorder SnapshotRecorder) (*PersonalData, *domain.Portfolio) {
	t.Helper()
	portfolio := domain.NewPortfolio()
	prof := NewProfitability("binance", "USDT", []string{"BTC/USDT"},
		newChecker("BTC/USDT"), bus, portfolio)
	d, err := NewPersonalData("binance", bus, portfolio, prof, recorder)
	require.NoError(t, err)
	return d, portfolio
}

func TestNewPersonalDataRequiresCollaborators(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()

	_, err := NewPersonalData("binance", nil, domain.NewPortfolio(), &Profitability{}, nil)
	assert.Error(t, err)
	_, err = NewPersonalData("binance", bus, nil, &Profitability{}, nil)
	assert.Error(t, err)
	_, err = NewPersonalData("binance", bus, domain.NewPortfolio(), nil, nil)
	assert.Error(t, err)
}

func TestApplyBalanceUpdateRejectsInconsistentEntry(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()
	d, portfolio := newTestPersonalData(t, bus, nil)

	require.NoError(t, d.ApplyBalanceUpdate("BTC",
		decimal.NewFromInt(2), decimal.NewFromInt(2), decimal.Zero))

	err := d.ApplyBalanceUpdate("BTC",
		decimal.NewFromInt(5), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Error(t, err, "total != free + used must be rejected")

	got, ok := portfolio.Get("BTC")
	require.True(t, ok)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(2)),
		"rejected update must leave the stored entry untouched")
}

func TestBalanceUpdatesFlowThroughBus(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()
	d, portfolio := newTestPersonalData(t, bus, nil)
	d.Bind(bus)

	bus.Publish(channel.KindBalance, "binance", channel.Event{
		Symbol: "BTC",
		Data: domain.BalanceUpdate{
			Currency: "BTC",
			Total:    decimal.NewFromInt(3),
			Free:     decimal.NewFromInt(3),
			Used:     decimal.Zero,
		},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := portfolio.Get("BTC"); ok && b.Total.Equal(decimal.NewFromInt(3)) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("balance update never reached the portfolio")
}

func TestSnapshotRecordedOnMeaningfulChange(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()
	store := &recordingStore{}
	d, _ := newTestPersonalData(t, bus, store)

	// Pin origin at 1000, then move the price: the second balance-driven
	// recompute sees a non-zero delta and records.
	d.profitability.HandleTickerUpdate("BTC/USDT", decimal.NewFromInt(1000))
	require.NoError(t, d.ApplyBalanceUpdate("BTC",
		decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero))
	before := store.count()

	d.profitability.HandleTickerUpdate("BTC/USDT", decimal.NewFromInt(1200))
	require.NoError(t, d.ApplyBalanceUpdate("BTC",
		decimal.NewFromInt(2), decimal.NewFromInt(2), decimal.Zero))

	assert.Greater(t, store.count(), before)
}

func TestOpenOrdersFiltersTerminalStates(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()
	d, _ := newTestPersonalData(t, bus, nil)

	d.HandleOrdersUpdate([]domain.Order{
		{ID: "1", Symbol: "BTC/USDT", Status: domain.OrderStatusNew},
		{ID: "2", Symbol: "BTC/USDT", Status: domain.OrderStatusPartiallyFilled},
		{ID: "3", Symbol: "BTC/USDT", Status: domain.OrderStatusFilled},
		{ID: "4", Symbol: "BTC/USDT", Status: domain.OrderStatusCanceled},
	})

	open := d.OpenOrders()
	assert.Len(t, open, 2)
}

func TestResolveOrderPortfolio(t *testing.T) {
	bus := channel.NewBus(16)
	defer bus.Close()
	d, portfolio := newTestPersonalData(t, bus, nil)

	shared := d.ResolveOrderPortfolio(domain.Order{ID: "1"})
	assert.Same(t, portfolio, shared)

	linked := domain.NewPortfolio()
	got := d.ResolveOrderPortfolio(domain.Order{ID: "2", LinkedPortfolio: linked})
	assert.Same(t, linked, got)
}
