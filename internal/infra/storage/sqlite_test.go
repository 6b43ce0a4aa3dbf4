package storage

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"folio_go/internal/account"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return store
}

func TestBeginSessionAndRecordSnapshot(t *testing.T) {
	store := setupTestStore(t)

	session, err := store.BeginSession("binance", "USDT")
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	if session.ID == 0 {
		t.Fatal("session should have an assigned ID")
	}

	state := account.State{
		OriginValue:          decimal.NewFromInt(1000),
		CurrentValue:         decimal.NewFromInt(1100),
		Profitability:        decimal.NewFromInt(100),
		ProfitabilityPercent: decimal.NewFromInt(10),
		MarketAveragePercent: decimal.NewFromInt(5),
	}
	if err := store.RecordSnapshot(state); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	persisted, err := store.LastSession("binance")
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if persisted.OriginValue != "1000" {
		t.Errorf("origin value should persist with the first snapshot, got %q", persisted.OriginValue)
	}

	snapshots, err := store.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].ProfitabilityPercent != "10" {
		t.Errorf("expected percent 10, got %s", snapshots[0].ProfitabilityPercent)
	}
	if snapshots[0].SessionID != session.ID {
		t.Errorf("snapshot bound to wrong session: %d", snapshots[0].SessionID)
	}
}

func TestRecordSnapshotWithoutSession(t *testing.T) {
	store := setupTestStore(t)

	if err := store.RecordSnapshot(account.State{}); err == nil {
		t.Fatal("expected error without an active session")
	}
	if err := store.SetOriginValue(decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected error without an active session")
	}
}

func TestSetOriginValue(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.BeginSession("binance", "USDT"); err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	if err := store.SetOriginValue(decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("SetOriginValue failed: %v", err)
	}

	session, err := store.LastSession("binance")
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("expected a persisted session")
	}
	if session.OriginValue != "1000" {
		t.Errorf("expected origin value 1000, got %s", session.OriginValue)
	}
}

func TestLastSessionReturnsNilWhenEmpty(t *testing.T) {
	store := setupTestStore(t)

	session, err := store.LastSession("binance")
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil session, got %+v", session)
	}
}
