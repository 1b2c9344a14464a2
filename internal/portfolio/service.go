package portfolio

import (
	"context"
	"errors"
	"fmt"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot is a user's portfolio at one point in time.
type Snapshot struct {
	Credits      decimal.Decimal `json:"credits"`
	Positions    []Position      `json:"positions"`
	RealizedPL   decimal.Decimal `json:"realizedPL"`
	UnrealizedPL decimal.Decimal `json:"unrealizedPL"`
	MarketValue  decimal.Decimal `json:"marketValue"`
	TotalValue   decimal.Decimal `json:"totalValue"`
}

// Service builds portfolio snapshots from the stored trade history.
type Service struct {
	db     *gorm.DB
	prices PriceSource
	logger *zap.Logger
}

func NewService(db *gorm.DB, prices PriceSource, logger *zap.Logger) *Service {
	return &Service{db: db, prices: prices, logger: logger.Named("portfolio")}
}

// Snapshot aggregates and prices the user's positions. The total realized P&L
// is written back to the user row so the leaderboard can rank on it; a failed
// write is logged and does not fail the snapshot.
func (s *Service) Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var orders []models.Order
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	positions := Aggregate(orders)
	Enrich(ctx, positions, s.prices, s.logger)

	snapshot := &Snapshot{
		Credits:   decimal.NewFromFloat(user.Credits),
		Positions: positions,
	}
	for _, p := range positions {
		snapshot.RealizedPL = snapshot.RealizedPL.Add(p.RealizedPL)
		snapshot.UnrealizedPL = snapshot.UnrealizedPL.Add(p.UnrealizedPL)
		snapshot.MarketValue = snapshot.MarketValue.Add(p.CurrentPrice.Mul(p.NetAmount))
	}
	snapshot.TotalValue = snapshot.Credits.Add(snapshot.MarketValue)

	realized := snapshot.RealizedPL.InexactFloat64()
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("realized_pnl", realized).Error
	if err != nil {
		s.logger.Error("Failed to store realized P&L", zap.Stringer("user", userID), zap.Error(err))
	}

	return snapshot, nil
}

// Orders returns the user's trade history, newest first.
func (s *Service) Orders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp desc, id desc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return orders, nil
}
