package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/events"
	"paper-trade-go/internal/models"
	"paper-trade-go/internal/portfolio"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRequest is a request to buy or sell an amount of one instrument at price.
type OrderRequest struct {
	UserID uuid.UUID
	Symbol string
	Side   models.Side
	Amount float64
	Price  float64
}

// Result is an executed order together with the credit balance after it.
type Result struct {
	Order   models.Order `json:"order"`
	Credits float64      `json:"credits"`
}

// Service validates and executes simulated orders.
type Service struct {
	db        *gorm.DB
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    logger.Named("trading"),
		now:       time.Now,
	}
}

// Submit validates req against the user's balance and holdings and, when it
// passes, moves the credits and appends the trade record in one transaction.
// A rejected order changes nothing.
func (s *Service) Submit(ctx context.Context, req OrderRequest) (*Result, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount
	}
	if req.Price <= 0 {
		return nil, apperror.ErrInvalidPrice
	}
	if !req.Side.Valid() {
		return nil, apperror.ErrInvalidSide
	}
	symbol := strings.ToUpper(req.Symbol)
	cost := decimal.NewFromFloat(req.Amount).Mul(decimal.NewFromFloat(req.Price))

	var result Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instrument models.Instrument
		err := tx.Where("symbol = ? AND enabled = ?", symbol, true).First(&instrument).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrUnknownSymbol
		}
		if err != nil {
			return fmt.Errorf("failed to load instrument: %w", err)
		}

		// Locking the user row serializes one user's orders, so concurrent sells
		// cannot both count the same holdings.
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		delta := cost
		update := tx.Model(&models.User{}).Where("id = ?", user.ID)
		switch req.Side {
		case models.SideBuy:
			if cost.GreaterThan(decimal.NewFromFloat(user.Credits)) {
				return apperror.ErrInsufficientCredits
			}
			delta = cost.Neg()
			// Guard against a concurrent order spending the same credits.
			update = update.Where("credits >= ?", cost.InexactFloat64())
		case models.SideSell:
			held, err := netAmount(tx, user.ID, symbol)
			if err != nil {
				return err
			}
			if decimal.NewFromFloat(req.Amount).GreaterThan(held) {
				return apperror.ErrInsufficientShares
			}
		}

		res := update.UpdateColumn("credits", gorm.Expr("credits + ?", delta.InexactFloat64()))
		if res.Error != nil {
			return fmt.Errorf("failed to update credits: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrInsufficientCredits
		}

		order := models.Order{
			UserID:    user.ID,
			Symbol:    symbol,
			Name:      instrument.Name,
			Side:      req.Side,
			Price:     req.Price,
			Amount:    req.Amount,
			Timestamp: s.now().UTC(),
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to record order: %w", err)
		}

		var credits float64
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Select("credits").Scan(&credits).Error; err != nil {
			return fmt.Errorf("failed to reload credits: %w", err)
		}
		result = Result{Order: order, Credits: credits}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order executed",
		zap.Stringer("user", req.UserID),
		zap.String("side", string(req.Side)),
		zap.String("symbol", symbol),
		zap.Float64("amount", req.Amount),
		zap.Float64("price", req.Price),
	)
	s.publisher.Publish(ctx, events.New(events.OrderExecuted, req.UserID, result))

	return &result, nil
}

// netAmount returns how many shares of symbol the user currently holds.
func netAmount(tx *gorm.DB, userID uuid.UUID, symbol string) (decimal.Decimal, error) {
	var orders []models.Order
	if err := tx.Where("user_id = ? AND symbol = ?", userID, symbol).Order("id").Find(&orders).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load holdings: %w", err)
	}
	for _, p := range portfolio.Aggregate(orders) {
		if p.Symbol == symbol {
			return p.NetAmount, nil
		}
	}
	return decimal.Zero, nil
}
