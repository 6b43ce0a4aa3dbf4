package cache

import (
	"testing"

	"github.com/shopspring/decimal"

	"folio_go/internal/domain"
)

func level(price, amount int64) domain.BookLevel {
	return domain.BookLevel{Price: decimal.NewFromInt(price), Amount: decimal.NewFromInt(amount)}
}

func TestOrderBookUpdateSortsAndTruncates(t *testing.T) {
	b := NewOrderBook()

	asks := make([]domain.BookLevel, 0, MaxBookDepth+20)
	for i := MaxBookDepth + 20; i > 0; i-- {
		asks = append(asks, level(int64(1000+i), 1))
	}
	b.Update(asks, []domain.BookLevel{level(999, 2), level(998, 3)})

	gotAsks, gotBids := b.Snapshot()
	if len(gotAsks) != MaxBookDepth {
		t.Fatalf("expected %d ask levels, got %d", MaxBookDepth, len(gotAsks))
	}
	// Asks ascending, best (lowest) first.
	if !gotAsks[0].Price.Equal(decimal.NewFromInt(1001)) {
		t.Errorf("expected best ask 1001, got %v", gotAsks[0].Price)
	}
	// Bids descending, best (highest) first.
	if !gotBids[0].Price.Equal(decimal.NewFromInt(999)) {
		t.Errorf("expected best bid 999, got %v", gotBids[0].Price)
	}
}

func TestOrderBookDeltaUpdate(t *testing.T) {
	b := NewOrderBook()
	b.Update(
		[]domain.BookLevel{level(101, 1), level(102, 1)},
		[]domain.BookLevel{level(100, 1), level(99, 1)},
	)

	b.DeltaUpdate(
		[]domain.BookLevel{
			level(101, 5), // amend existing level
			level(103, 2), // insert new level
			level(102, 0), // remove level
		},
		nil,
	)

	asks, bids := b.Snapshot()
	if len(asks) != 2 {
		t.Fatalf("expected 2 ask levels, got %d", len(asks))
	}
	if !asks[0].Price.Equal(decimal.NewFromInt(101)) || !asks[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected amended level 101@5, got %v@%v", asks[0].Price, asks[0].Amount)
	}
	if !asks[1].Price.Equal(decimal.NewFromInt(103)) {
		t.Errorf("expected inserted level 103, got %v", asks[1].Price)
	}
	if len(bids) != 2 {
		t.Errorf("bids should be untouched, got %d levels", len(bids))
	}
}

func TestOrderBookRemoveMissingLevelIsNoOp(t *testing.T) {
	b := NewOrderBook()
	b.Update([]domain.BookLevel{level(101, 1)}, []domain.BookLevel{level(100, 1)})

	b.DeltaUpdate([]domain.BookLevel{level(555, 0)}, nil)

	asks, _ := b.Snapshot()
	if len(asks) != 1 || !asks[0].Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("removing an absent level must not change the book: %v", asks)
	}
}

func TestOrderBookInitialized(t *testing.T) {
	b := NewOrderBook()
	if b.Initialized() {
		t.Error("fresh book should not be initialized")
	}
	b.Update([]domain.BookLevel{level(101, 1)}, nil)
	if !b.Initialized() {
		t.Error("book should be initialized after first update")
	}
}
