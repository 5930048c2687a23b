package models

import (
	"time"
)

// TagCategory is a keyword-driven classification rule. An article receives
// the category's name as a tag when any of its keywords match the article
// text. Only enabled categories participate in classification.
type TagCategory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null" json:"name"`
	Keywords  StringSlice `gorm:"type:json" json:"keywords"`
	Color     string      `json:"color"` // Presentation only, ignored by the pipeline
	Enabled   bool        `json:"enabled"` // No column default: false must round-trip on insert
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
