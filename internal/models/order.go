package models

import (
	"time"

	"github.com/google/uuid"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order is an executed trade record. Records are appended once on submission
// and never updated or deleted.
type Order struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    uuid.UUID `gorm:"type:uuid;index:idx_orders_user_symbol;not null" json:"userId"`
	Symbol    string    `gorm:"index:idx_orders_user_symbol;not null" json:"symbol"`
	Name      string    `json:"name"` // instrument name at order time
	Side      Side      `gorm:"not null" json:"type"`
	Price     float64   `gorm:"not null" json:"price"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}
