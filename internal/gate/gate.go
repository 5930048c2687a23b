package gate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/pkg/logger"
)

// ErrStorageFailure marks a persistence error. Runs that cannot write are
// aborted and reported, never silently dropped.
var ErrStorageFailure = errors.New("storage failure")

// Origin identifies which pipeline produced a candidate. Only deep-fetch
// candidates may upgrade an existing article.
type Origin int

const (
	OriginFeed Origin = iota
	OriginSearch
	OriginDeepFetch
)

// Result reports an admission decision
type Result struct {
	Created bool
	Article *models.Article
}

// Gate is the dedup/persistence gate. It decides novelty of a candidate by
// canonical URL and commits it, classifying synchronously as part of
// admission. Admission is atomic per URL: an in-process striped lock
// serializes racing runners and the unique index on articles.url is the
// cross-process backstop, so at most one creation per URL results.
type Gate struct {
	repo               storage.Repository
	classifier         *classifier.Classifier
	reclassifyOnEnrich bool
	log                *logger.Logger

	locks [64]sync.Mutex
}

// New creates a gate. reclassifyOnEnrich controls whether the deep-fetch
// upgrade path recomputes tags against the enriched full text.
func New(repo storage.Repository, cls *classifier.Classifier, reclassifyOnEnrich bool, log *logger.Logger) *Gate {
	return &Gate{
		repo:               repo,
		classifier:         cls,
		reclassifyOnEnrich: reclassifyOnEnrich,
		log:                log.WithComponent("gate"),
	}
}

// Admit converts a candidate into a persisted article or recognizes it as a
// duplicate. New candidates are created, classified and stored processed
// (enriched when they already carry full content). Duplicates are untouched
// except for the deep-fetch upgrade path.
func (g *Gate) Admit(ctx context.Context, cand source.Candidate, origin Origin) (Result, error) {
	if cand.URL == "" {
		return Result{}, fmt.Errorf("candidate has no URL")
	}

	lock := g.urlLock(cand.URL)
	lock.Lock()
	defer lock.Unlock()

	existing, err := g.repo.GetArticleByURL(ctx, cand.URL)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: lookup %s: %v", ErrStorageFailure, cand.URL, err)
	}

	if existing != nil {
		return g.admitDuplicate(ctx, cand, origin, existing)
	}

	return g.admitNew(ctx, cand, origin)
}

// admitNew creates and classifies a first-sighted candidate.
func (g *Gate) admitNew(ctx context.Context, cand source.Candidate, origin Origin) (Result, error) {
	article := &models.Article{
		URL:        cand.URL,
		Title:      cand.Title,
		Summary:    cand.Summary,
		Content:    cand.Content,
		FeedID:     cand.FeedID,
		SourceName: cand.SourceName,
		NewsDate:   cand.PublishedAt,
		Status:     models.ArticleStatusRaw,
	}

	tags, err := g.classifier.Classify(ctx, classifyText(article))
	if err != nil {
		return Result{}, fmt.Errorf("%w: classify %s: %v", ErrStorageFailure, cand.URL, err)
	}
	article.Tags = tags
	article.Status = models.ArticleStatusProcessed
	if origin == OriginDeepFetch && article.Content != "" {
		article.Status = models.ArticleStatusEnriched
	}

	created, err := g.repo.FindOrCreateArticle(ctx, article)
	if err != nil {
		return Result{}, fmt.Errorf("%w: create %s: %v", ErrStorageFailure, cand.URL, err)
	}
	if !created {
		// Lost a cross-process race; the argument now holds the winner's row
		g.log.Debug().Str("url", cand.URL).Msg("Concurrent creation detected, treating as duplicate")
		return g.admitDuplicate(ctx, cand, origin, article)
	}

	g.log.Debug().
		Str("url", cand.URL).
		Strs("tags", article.Tags).
		Msg("Admitted new article")

	return Result{Created: true, Article: article}, nil
}

// admitDuplicate leaves an existing article untouched, except that a
// deep-fetch result for an already-processed article merges content in and
// advances the status to enriched.
func (g *Gate) admitDuplicate(ctx context.Context, cand source.Candidate, origin Origin, existing *models.Article) (Result, error) {
	if origin != OriginDeepFetch || existing.Status == models.ArticleStatusRaw {
		return Result{Created: false, Article: existing}, nil
	}
	if existing.Status == models.ArticleStatusEnriched && cand.Content == "" {
		return Result{Created: false, Article: existing}, nil
	}

	if cand.Content != "" {
		existing.Content = cand.Content
	}
	if cand.Title != "" {
		existing.Title = cand.Title
	}
	if !cand.PublishedAt.IsZero() {
		existing.NewsDate = cand.PublishedAt
	}
	existing.Status = models.ArticleStatusEnriched

	if g.reclassifyOnEnrich {
		tags, err := g.classifier.Classify(ctx, classifyText(existing))
		if err != nil {
			return Result{}, fmt.Errorf("%w: reclassify %s: %v", ErrStorageFailure, existing.URL, err)
		}
		existing.Tags = tags
	}

	if err := g.repo.UpdateArticle(ctx, existing); err != nil {
		return Result{}, fmt.Errorf("%w: enrich %s: %v", ErrStorageFailure, existing.URL, err)
	}

	g.log.Debug().
		Str("url", existing.URL).
		Msg("Enriched existing article")

	return Result{Created: false, Article: existing}, nil
}

// urlLock returns the striped lock for a URL
func (g *Gate) urlLock(url string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(url))
	return &g.locks[h.Sum32()%uint32(len(g.locks))]
}

// classifyText is the text the classifier sees: title plus the richest
// available body.
func classifyText(a *models.Article) string {
	parts := []string{a.Title}
	if a.Content != "" {
		parts = append(parts, a.Content)
	} else if a.Summary != "" {
		parts = append(parts, a.Summary)
	}
	return strings.Join(parts, " ")
}
