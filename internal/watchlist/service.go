package watchlist

import (
	"context"
	"fmt"
	"time"

	"paper-trade-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstrumentLookup resolves a symbol to an enabled instrument.
type InstrumentLookup interface {
	Instrument(ctx context.Context, symbol string) (*models.Instrument, error)
}

// Service manages the symbols each user follows.
type Service struct {
	db          *gorm.DB
	instruments InstrumentLookup
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(db *gorm.DB, instruments InstrumentLookup, logger *zap.Logger) *Service {
	return &Service{db: db, instruments: instruments, logger: logger.Named("watchlist"), now: time.Now}
}

// Add puts symbol on the user's watchlist. Adding a symbol twice is a no-op.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, symbol string) error {
	instrument, err := s.instruments.Instrument(ctx, symbol)
	if err != nil {
		return err
	}
	entry := models.WatchlistEntry{UserID: userID, Symbol: instrument.Symbol, AddedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to add %s to watchlist: %w", instrument.Symbol, err)
	}
	return nil
}

// Remove takes symbol off the user's watchlist. Removing an absent symbol is a no-op.
func (s *Service) Remove(ctx context.Context, userID uuid.UUID, symbol string) error {
	instrument, err := s.instruments.Instrument(ctx, symbol)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, instrument.Symbol).
		Delete(&models.WatchlistEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove %s from watchlist: %w", instrument.Symbol, err)
	}
	return nil
}

// List returns the user's watchlist ordered by symbol.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	return entries, nil
}

// Symbols returns just the symbols of the user's watchlist.
func (s *Service) Symbols(ctx context.Context, userID uuid.UUID) ([]string, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}
