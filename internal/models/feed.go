package models

import (
	"time"
)

// Feed represents a registered RSS/Atom subscription source.
// Feeds are created via configuration import or manual registration and are
// never mutated afterwards except for display-name correction.
type Feed struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	URL       string    `gorm:"uniqueIndex;not null" json:"url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
