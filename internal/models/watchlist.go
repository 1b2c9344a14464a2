package models

import (
	"time"

	"github.com/google/uuid"
)

// WatchlistEntry marks a symbol a user wants to follow.
type WatchlistEntry struct {
	UserID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Symbol  string    `gorm:"primaryKey" json:"symbol"`
	AddedAt time.Time `json:"addedAt"`
}
