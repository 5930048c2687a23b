package storage

import (
	"context"
	"errors"

	"github.com/adpulse-agent/internal/models"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence. The pipeline only
// requires atomicity of FindOrCreateArticle; everything else is simple
// independent reads and updates.
type Repository interface {
	// Article operations
	FindOrCreateArticle(ctx context.Context, article *models.Article) (created bool, err error)
	GetArticleByURL(ctx context.Context, url string) (*models.Article, error)
	GetArticleByID(ctx context.Context, id uint) (*models.Article, error)
	UpdateArticle(ctx context.Context, article *models.Article) error
	ListArticles(ctx context.Context, filter ArticleFilter) ([]*models.Article, error)
	ListArticlesNeedingEnrichment(ctx context.Context, limit int) ([]*models.Article, error)
	CountArticlesByTag(ctx context.Context) (map[string]int, error)

	// Feed operations
	CreateFeed(ctx context.Context, feed *models.Feed) error
	GetFeedByID(ctx context.Context, id uint) (*models.Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*models.Feed, error)
	ListFeeds(ctx context.Context) ([]*models.Feed, error)
	UpdateFeed(ctx context.Context, feed *models.Feed) error
	DeleteFeed(ctx context.Context, id uint) error

	// Tag category operations
	ListCategories(ctx context.Context, enabledOnly bool) ([]*models.TagCategory, error)
	GetCategoryByName(ctx context.Context, name string) (*models.TagCategory, error)
	SaveCategory(ctx context.Context, category *models.TagCategory) error
	DeleteCategory(ctx context.Context, id uint) error

	// Maintenance
	Migrate() error
	Close() error
}

// ArticleFilter defines filtering options for article listings
type ArticleFilter struct {
	Status    *models.ArticleStatus
	FeedID    *uint
	Tag       string
	Limit     int
	Offset    int
	OrderBy   string // "news_date", "inserted_at"
	OrderDesc bool
}

// DefaultArticleFilter returns a filter with sensible defaults
func DefaultArticleFilter() ArticleFilter {
	return ArticleFilter{
		Limit:     50,
		OrderBy:   "news_date",
		OrderDesc: true,
	}
}
