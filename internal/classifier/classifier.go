package classifier

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/pkg/logger"
)

// Classifier assigns tag-category names to article text using
// case-insensitive, diacritic-insensitive substring matching. A category is
// assigned when any of its keywords match; there is no scoring and no
// mutual exclusion. Classification is idempotent for unchanged text and
// unchanged category configuration.
type Classifier struct {
	repo storage.Repository
	log  *logger.Logger

	mu    sync.RWMutex
	cache []*models.TagCategory // Enabled categories; nil means not loaded
}

// New creates a classifier reading categories through the repository
func New(repo storage.Repository, log *logger.Logger) *Classifier {
	return &Classifier{
		repo: repo,
		log:  log.WithComponent("classifier"),
	}
}

// Classify returns the sorted set of category names whose keywords match
// the text. Only enabled categories participate.
func (c *Classifier) Classify(ctx context.Context, text string) ([]string, error) {
	categories, err := c.enabledCategories(ctx)
	if err != nil {
		return nil, err
	}
	return Match(categories, text), nil
}

// Invalidate drops the cached category set so the next classification
// re-reads configuration from storage. Call after category administration.
func (c *Classifier) Invalidate() {
	c.mu.Lock()
	c.cache = nil
	c.mu.Unlock()
	c.log.Debug().Msg("Category cache invalidated")
}

// enabledCategories returns the cached enabled-category set, loading it
// from storage on first use or after invalidation.
func (c *Classifier) enabledCategories(ctx context.Context) ([]*models.TagCategory, error) {
	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	categories, err := c.repo.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache = categories
	c.mu.Unlock()
	return categories, nil
}

// Match applies the keyword rules of the given categories to the text and
// returns the matching category names, sorted. Disabled categories are
// skipped even if passed in.
func Match(categories []*models.TagCategory, text string) []string {
	folded := Fold(text)

	var tags []string
	for _, cat := range categories {
		if !cat.Enabled {
			continue
		}
		for _, keyword := range cat.Keywords {
			kw := Fold(keyword)
			if kw == "" {
				continue
			}
			if strings.Contains(folded, kw) {
				tags = append(tags, cat.Name)
				break
			}
		}
	}

	sort.Strings(tags)
	return tags
}

// Fold lowercases the text and strips diacritics so "Publicité" matches
// "publicite".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
