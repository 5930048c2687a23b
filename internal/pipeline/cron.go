package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adpulse-agent/internal/gate"
)

// RunCronScraping polls every registered feed and admits each candidate
// through the gate. A single feed's failure is recorded in the error list
// and does not abort the processing of other feeds; the run aborts only
// when storage itself looks unreachable.
func (p *Pipeline) RunCronScraping(ctx context.Context) (*ScrapeResult, error) {
	startTime := time.Now()
	result := &ScrapeResult{}

	p.log.Info().Msg("Starting cron scraping run")

	feeds, err := p.repo.ListFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list feeds: %v", gate.ErrStorageFailure, err)
	}

	storageFailures := 0
	for _, feed := range feeds {
		candidates, err := p.feeds.FetchFeed(ctx, feed.URL)
		if err != nil {
			p.log.Warn().
				Err(err).
				Str("feed", feed.Name).
				Msg("Feed fetch failed")
			result.Errors = append(result.Errors, fmt.Errorf("feed %s: %w", feed.Name, err))
			continue
		}
		result.FeedsProcessed++

		feedID := feed.ID
		for _, cand := range candidates {
			cand.FeedID = &feedID
			if cand.SourceName == "" {
				cand.SourceName = feed.Name
			}

			res, err := p.gate.Admit(ctx, cand, gate.OriginFeed)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("feed %s: %w", feed.Name, err))
				if errors.Is(err, gate.ErrStorageFailure) {
					storageFailures++
					if storageFailures >= maxConsecutiveStorageFailures {
						result.Duration = time.Since(startTime)
						return result, fmt.Errorf("aborting run, storage looks down: %w", err)
					}
				}
				continue
			}
			storageFailures = 0
			if res.Created {
				result.Saved++
			} else {
				result.Skipped++
			}
		}
	}

	result.Duration = time.Since(startTime)

	p.log.Info().
		Int("feeds", result.FeedsProcessed).
		Int("saved", result.Saved).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Cron scraping completed")

	return result, nil
}
