package leaderboard

import (
	"context"
	"fmt"

	"paper-trade-go/internal/models"
	"paper-trade-go/internal/portfolio"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const anonymousName = "anon"

// Entry is one row of the ranking.
type Entry struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	RealizedPnL float64   `json:"realizedPnL"`
}

// Service ranks users by realized profit and loss.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger.Named("leaderboard")}
}

// Top returns up to limit users ordered by realized P&L, best first.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id", "display_name", "realized_pnl").
		Order("realized_pnl desc, created_at").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]Entry, len(users))
	for i, u := range users {
		name := u.DisplayName
		if name == "" {
			name = anonymousName
		}
		entries[i] = Entry{Rank: i + 1, UserID: u.ID, DisplayName: name, RealizedPnL: u.RealizedPnL}
	}
	return entries, nil
}

// Refresh recomputes every user's realized P&L from their trade history, so
// the ranking also covers users who have not opened their portfolio lately.
// It returns the number of users updated.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	updated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		var orders []models.Order
		if err := s.db.WithContext(ctx).Where("user_id = ?", id).Order("id").Find(&orders).Error; err != nil {
			return updated, fmt.Errorf("failed to load orders for %s: %w", id, err)
		}
		realized := decimal.Zero
		for _, p := range portfolio.Aggregate(orders) {
			realized = realized.Add(p.RealizedPL)
		}

		err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", id).
			UpdateColumn("realized_pnl", realized.InexactFloat64()).Error
		if err != nil {
			return updated, fmt.Errorf("failed to store realized P&L for %s: %w", id, err)
		}
		updated++
	}

	s.logger.Info("Leaderboard refreshed", zap.Int("users", updated))
	return updated, nil
}
