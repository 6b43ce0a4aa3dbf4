package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"folio_go/internal/account"
)

// Session records one trading session's origin snapshot metadata. It is
// the extension point for history-based resume: the loader exists but the
// bootstrap always starts from scratch.
type Session struct {
	ID              uint   `gorm:"primaryKey"`
	Exchange        string `gorm:"index"`
	ReferenceMarket string
	OriginValue     string
	StartedAt       time.Time
}

// ProfitSnapshot is one appended profitability state, written whenever
// the valuation meaningfully changed.
type ProfitSnapshot struct {
	ID                   uint `gorm:"primaryKey"`
	SessionID            uint `gorm:"index"`
	CurrentValue         string
	Profitability        string
	ProfitabilityPercent string
	MarketAveragePercent string
	CreatedAt            time.Time
}

// Store persists session and profitability records in SQLite.
type Store struct {
	db      *gorm.DB
	session *Session
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Session{}, &ProfitSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// BeginSession records a fresh session start.
func (s *Store) BeginSession(exchange, referenceMarket string) (*Session, error) {
	session := &Session{
		Exchange:        exchange,
		ReferenceMarket: referenceMarket,
		StartedAt:       time.Now(),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

// SetOriginValue stores the reference-market origin value once the first
// valid recompute established it.
func (s *Store) SetOriginValue(value decimal.Decimal) error {
	if s.session == nil {
		return errors.New("no active session")
	}
	s.session.OriginValue = value.String()
	return s.db.Save(s.session).Error
}

// RecordSnapshot appends the profitability state to the active session.
// The session's origin value is persisted the first time a positive
// baseline shows up.
func (s *Store) RecordSnapshot(state account.State) error {
	if s.session == nil {
		return errors.New("no active session")
	}
	if s.session.OriginValue == "" && state.OriginValue.IsPositive() {
		if err := s.SetOriginValue(state.OriginValue); err != nil {
			return err
		}
	}
	snapshot := &ProfitSnapshot{
		SessionID:            s.session.ID,
		CurrentValue:         state.CurrentValue.String(),
		Profitability:        state.Profitability.String(),
		ProfitabilityPercent: state.ProfitabilityPercent.String(),
		MarketAveragePercent: state.MarketAveragePercent.String(),
	}
	return s.db.Create(snapshot).Error
}

// LastSession returns the most recent session for an exchange, or nil
// when none exists. Resume semantics are intentionally not implemented;
// callers currently ignore the result and start from scratch.
func (s *Store) LastSession(exchange string) (*Session, error) {
	var session Session
	err := s.db.Order("started_at desc").First(&session, "exchange = ?", exchange).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Snapshots returns the recorded snapshots of the active session, newest
// last.
func (s *Store) Snapshots() ([]ProfitSnapshot, error) {
	if s.session == nil {
		return nil, errors.New("no active session")
	}
	var snapshots []ProfitSnapshot
	err := s.db.Order("id asc").Find(&snapshots, "session_id = ?", s.session.ID).Error
	return snapshots, err
}
