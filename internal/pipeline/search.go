package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/source"
)

// RunActiveSearch runs the active-search capability for a configured target
// and admits every candidate. Fails immediately with ErrUnknownTarget when
// the key is not registered.
func (p *Pipeline) RunActiveSearch(ctx context.Context, targetKey string, opts source.Options) (*SearchResult, error) {
	startTime := time.Now()

	target, ok := p.targets.Get(targetKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, targetKey)
	}

	p.log.Info().
		Str("target", targetKey).
		Str("window", string(opts.Window)).
		Bool("rss_only", opts.RSSOnly).
		Msg("Starting active search")

	result := &SearchResult{}

	candidates, searchErrs := p.search.Search(ctx, target, opts)
	result.Errors = append(result.Errors, searchErrs...)
	result.TotalFound = len(candidates)

	storageFailures := 0
	for _, cand := range candidates {
		res, err := p.gate.Admit(ctx, cand, gate.OriginSearch)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("target %s: %w", targetKey, err))
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

	result.Duration = time.Since(startTime)

	p.log.Info().
		Str("target", targetKey).
		Int("found", result.TotalFound).
		Int("saved", result.Saved).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Active search completed")

	return result, nil
}

// PreviewActiveSearch runs the search capability without admitting
// anything, for callers that want to inspect results before the save step.
func (p *Pipeline) PreviewActiveSearch(ctx context.Context, targetKey string, opts source.Options) ([]source.Candidate, []error, error) {
	target, ok := p.targets.Get(targetKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTarget, targetKey)
	}
	candidates, errs := p.search.Search(ctx, target, opts)
	return candidates, errs, nil
}

// AdmitCandidates pushes previously previewed candidates through the gate,
// producing the saved/skipped counts of the save step.
func (p *Pipeline) AdmitCandidates(ctx context.Context, candidates []source.Candidate) (saved, skipped int, errs []error) {
	for _, cand := range candidates {
		res, err := p.gate.Admit(ctx, cand, gate.OriginSearch)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Created {
			saved++
		} else {
			skipped++
		}
	}
	return saved, skipped, errs
}

// TargetKeys exposes the registered target keys for API listings
func (p *Pipeline) TargetKeys() []string {
	return p.targets.Keys()
}
