package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ArticleStatus represents the processing state of an article
type ArticleStatus string

const (
	// ArticleStatusRaw means the article has been persisted but not yet classified
	ArticleStatusRaw ArticleStatus = "raw"
	// ArticleStatusProcessed means tags have been computed
	ArticleStatusProcessed ArticleStatus = "processed"
	// ArticleStatusEnriched means the article additionally carries deep-scraped full content
	ArticleStatusEnriched ArticleStatus = "enriched"
)

// StringSlice is a custom type for storing string arrays as JSON columns.
// Malformed stored content is surfaced as a scan error rather than silently
// decoded to an empty set.
type StringSlice []string

// Value stores the slice as a JSON string so the column is TEXT, not BLOB;
// SQL LIKE filters over the column depend on that.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("string slice: unsupported column type %T", value)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("string slice: malformed stored JSON %q: %w", data, err)
	}
	return nil
}

// Article represents a persisted news article. URL is the sole dedup key:
// two candidates with the same URL are the same article regardless of source.
type Article struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	URL        string        `gorm:"uniqueIndex;not null" json:"url"`
	Title      string        `gorm:"not null" json:"title"`
	Summary    string        `gorm:"type:text" json:"summary"`
	Content    string        `gorm:"type:text" json:"content"`
	FeedID     *uint         `gorm:"index" json:"feed_id"` // Nullable for search/deep-scrape articles
	Feed       *Feed         `gorm:"foreignKey:FeedID" json:"feed,omitempty"`
	SourceName string        `json:"source_name"`
	NewsDate   time.Time     `gorm:"index" json:"news_date"` // Publication date as extracted from the source
	Status     ArticleStatus `gorm:"default:'raw';index" json:"status"`
	Tags       StringSlice   `gorm:"type:json" json:"tags"`
	InsertedAt time.Time     `gorm:"autoCreateTime" json:"inserted_at"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasFullContent reports whether the article already carries deep-scraped text.
func (a *Article) HasFullContent() bool {
	return a.Status == ArticleStatusEnriched && a.Content != ""
}

// HasTag reports whether the article carries the given tag.
func (a *Article) HasTag(name string) bool {
	for _, t := range a.Tags {
		if t == name {
			return true
		}
	}
	return false
}
