package models

import "time"

// Instrument represents one equity from the fixed tradable list.
type Instrument struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Symbol    string    `gorm:"uniqueIndex" json:"symbol"`
	Name      string    `gorm:"not null" json:"name"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
}
