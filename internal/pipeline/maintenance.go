package pipeline

import (
	"context"
	"fmt"

	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/storage"
)

// Maintenance passes. These run outside the hot path: category changes do
// not retroactively reclassify articles unless ReclassifyAll is invoked
// explicitly, and a stray tag (e.g. a category name that self-matched its
// own literal occurrence in unrelated text) is repaired with StripTag
// without touching the classifier itself.

// ReclassifyAll re-runs classification over every stored article against
// the current enabled-category set and rewrites the tag list where it
// changed. Returns the number of updated articles.
func (p *Pipeline) ReclassifyAll(ctx context.Context) (int, error) {
	articles, err := p.repo.ListArticles(ctx, storage.ArticleFilter{OrderBy: "id"})
	if err != nil {
		return 0, fmt.Errorf("%w: list articles: %v", gate.ErrStorageFailure, err)
	}

	updated := 0
	for _, article := range articles {
		text := article.Title
		if article.Content != "" {
			text += " " + article.Content
		} else if article.Summary != "" {
			text += " " + article.Summary
		}

		tags, err := p.cls.Classify(ctx, text)
		if err != nil {
			return updated, fmt.Errorf("%w: classify article %d: %v", gate.ErrStorageFailure, article.ID, err)
		}
		if equalTagSets(article.Tags, tags) {
			continue
		}

		article.Tags = tags
		if err := p.repo.UpdateArticle(ctx, article); err != nil {
			return updated, fmt.Errorf("%w: update article %d: %v", gate.ErrStorageFailure, article.ID, err)
		}
		updated++
	}

	p.log.Info().Int("updated", updated).Msg("Reclassification pass completed")
	return updated, nil
}

// StripTag removes the named tag from every article carrying it. Returns
// the number of updated articles.
func (p *Pipeline) StripTag(ctx context.Context, tag string) (int, error) {
	articles, err := p.repo.ListArticles(ctx, storage.ArticleFilter{Tag: tag, OrderBy: "id"})
	if err != nil {
		return 0, fmt.Errorf("%w: list articles: %v", gate.ErrStorageFailure, err)
	}

	updated := 0
	for _, article := range articles {
		if !article.HasTag(tag) {
			continue
		}

		kept := article.Tags[:0]
		for _, t := range article.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		article.Tags = kept

		if err := p.repo.UpdateArticle(ctx, article); err != nil {
			return updated, fmt.Errorf("%w: update article %d: %v", gate.ErrStorageFailure, article.ID, err)
		}
		updated++
	}

	p.log.Info().Str("tag", tag).Int("updated", updated).Msg("Tag strip completed")
	return updated, nil
}

// equalTagSets compares two already-sorted tag lists
func equalTagSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
