package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/models"
)

// DeepScrape fetches the full page at url and admits the result through the
// gate's upgrade path. Page failures are terminal for this single request
// and propagate to the caller.
func (p *Pipeline) DeepScrape(ctx context.Context, url string) (*models.Article, error) {
	p.log.Info().Str("url", url).Msg("Starting deep scrape")

	cand, err := p.pages.FetchPage(ctx, url)
	if err != nil {
		return nil, err
	}

	res, err := p.gate.Admit(ctx, cand, gate.OriginDeepFetch)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("url", url).
		Bool("created", res.Created).
		Str("status", string(res.Article.Status)).
		Msg("Deep scrape completed")

	return res.Article, nil
}

// RunEnrichment sweeps processed articles that still lack full content and
// deep-scrapes each of them. Per-article failures are recorded and the
// sweep continues; unfinished articles are simply picked up again on the
// next fire.
func (p *Pipeline) RunEnrichment(ctx context.Context, limit int) (*EnrichResult, error) {
	startTime := time.Now()
	result := &EnrichResult{}

	articles, err := p.repo.ListArticlesNeedingEnrichment(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list enrichment backlog: %v", gate.ErrStorageFailure, err)
	}
	result.Scanned = len(articles)

	for _, article := range articles {
		log := p.log.WithArticleID(article.ID)
		if _, err := p.DeepScrape(ctx, article.URL); err != nil {
			log.Warn().
				Err(err).
				Str("url", article.URL).
				Msg("Enrichment failed for article")
			result.Errors = append(result.Errors, fmt.Errorf("article %d: %w", article.ID, err))
			continue
		}
		log.Debug().Msg("Article enriched")
		result.Enriched++
	}

	result.Duration = time.Since(startTime)

	p.log.Info().
		Int("scanned", result.Scanned).
		Int("enriched", result.Enriched).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Enrichment sweep completed")

	return result, nil
}
