package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Feed{},
		&models.Article{},
		&models.TagCategory{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Article operations

// FindOrCreateArticle inserts the article unless one with the same URL
// already exists. The unique index on url makes the insert conflict-safe
// across processes; on conflict the existing row is loaded back into the
// argument and created is false.
func (r *Repository) FindOrCreateArticle(ctx context.Context, article *models.Article) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).
		Create(article)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var existing models.Article
	if err := r.db.WithContext(ctx).Where("url = ?", article.URL).First(&existing).Error; err != nil {
		return false, err
	}
	*article = existing
	return false, nil
}

func (r *Repository) GetArticleByURL(ctx context.Context, url string) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&article).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &article, nil
}

func (r *Repository) GetArticleByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).Preload("Feed").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &article, nil
}

func (r *Repository) UpdateArticle(ctx context.Context, article *models.Article) error {
	return r.db.WithContext(ctx).Save(article).Error
}

func (r *Repository) ListArticles(ctx context.Context, filter storage.ArticleFilter) ([]*models.Article, error) {
	var articles []*models.Article
	query := r.db.WithContext(ctx).Model(&models.Article{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FeedID != nil {
		query = query.Where("feed_id = ?", *filter.FeedID)
	}
	if filter.Tag != "" {
		// Tags are a JSON array column; match the quoted element
		query = query.Where("tags LIKE ?", "%"+`"`+filter.Tag+`"`+"%")
	}

	orderCol := "news_date"
	if filter.OrderBy != "" {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// ListArticlesNeedingEnrichment returns processed articles that still lack
// deep-fetched content, oldest first so the sweep drains the backlog.
func (r *Repository) ListArticlesNeedingEnrichment(ctx context.Context, limit int) ([]*models.Article, error) {
	var articles []*models.Article
	query := r.db.WithContext(ctx).
		Where("status = ?", models.ArticleStatusProcessed).
		Where("content = '' OR content IS NULL").
		Order("inserted_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// CountArticlesByTag aggregates tag counts over classified articles. The
// tag list lives in a JSON column, so the grouping happens here rather
// than in SQL.
func (r *Repository) CountArticlesByTag(ctx context.Context) (map[string]int, error) {
	var articles []*models.Article
	err := r.db.WithContext(ctx).
		Select("id", "tags").
		Where("status IN ?", []models.ArticleStatus{models.ArticleStatusProcessed, models.ArticleStatusEnriched}).
		Find(&articles).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, a := range articles {
		for _, tag := range a.Tags {
			counts[tag]++
		}
	}
	return counts, nil
}

// Feed operations

func (r *Repository) CreateFeed(ctx context.Context, feed *models.Feed) error {
	return r.db.WithContext(ctx).Create(feed).Error
}

func (r *Repository) GetFeedByID(ctx context.Context, id uint) (*models.Feed, error) {
	var feed models.Feed
	if err := r.db.WithContext(ctx).First(&feed, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &feed, nil
}

func (r *Repository) GetFeedByURL(ctx context.Context, url string) (*models.Feed, error) {
	var feed models.Feed
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&feed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &feed, nil
}

func (r *Repository) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	var feeds []*models.Feed
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&feeds).Error; err != nil {
		return nil, err
	}
	return feeds, nil
}

func (r *Repository) UpdateFeed(ctx context.Context, feed *models.Feed) error {
	return r.db.WithContext(ctx).Save(feed).Error
}

func (r *Repository) DeleteFeed(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Feed{}, id).Error
}

// Tag category operations

func (r *Repository) ListCategories(ctx context.Context, enabledOnly bool) ([]*models.TagCategory, error) {
	var categories []*models.TagCategory
	query := r.db.WithContext(ctx).Order("name ASC")
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	if err := query.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *Repository) GetCategoryByName(ctx context.Context, name string) (*models.TagCategory, error) {
	var category models.TagCategory
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (r *Repository) SaveCategory(ctx context.Context, category *models.TagCategory) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *Repository) DeleteCategory(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.TagCategory{}, id).Error
}

// Ensure Repository implements the storage interface
var _ storage.Repository = (*Repository)(nil)
