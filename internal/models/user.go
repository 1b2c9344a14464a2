package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account holder together with its credit balance.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `json:"displayName"`
	PhoneNumber  string    `json:"phoneNumber"`
	Credits      float64   `gorm:"not null" json:"credits"`
	RealizedPnL  float64   `gorm:"column:realized_pnl;index;not null;default:0" json:"realizedPnL"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RevokedToken records a signed-out session token until it would have expired.
type RevokedToken struct {
	ID        string    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"index"`
}
