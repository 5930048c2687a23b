package source

import (
	"context"
	"time"

	"github.com/adpulse-agent/internal/config"
)

// Candidate is a raw, not-yet-persisted article record produced by a
// source adapter.
type Candidate struct {
	Title       string
	URL         string
	Summary     string
	Content     string // Full body text, deep-fetch only
	PublishedAt time.Time
	SourceName  string
	FeedID      *uint // Set when the candidate came from a registered feed
}

// FeedSource produces candidates by polling an RSS/Atom feed.
type FeedSource interface {
	// FetchFeed parses the feed document at feedURL into candidates.
	// Fails with ErrSourceUnreachable on network/timeout errors and
	// ErrSourceMalformed on unparsable content.
	FetchFeed(ctx context.Context, feedURL string) ([]Candidate, error)
}

// SearchSource produces candidates by actively querying external search
// surfaces for a configured target.
type SearchSource interface {
	// Search queries the target's search/scrape surfaces and its
	// affiliated feeds (opts.RSSOnly restricts to the feeds alone). The
	// result is window-filtered and capped per opts. A failing leg is
	// reported in the error list without aborting the other legs.
	Search(ctx context.Context, target config.SearchTarget, opts Options) ([]Candidate, []error)
}

// DeepFetchSource fetches and parses a single article page.
type DeepFetchSource interface {
	// FetchPage produces one enriched candidate for the page at url.
	// Fails with ErrPageUnreachable or ErrPageMalformed; there is no
	// partial result.
	FetchPage(ctx context.Context, url string) (Candidate, error)
}

// TargetRegistry holds the static search-target configuration, loaded once
// at startup and read-only afterwards.
type TargetRegistry struct {
	targets map[string]config.SearchTarget
	keys    []string
}

// NewTargetRegistry builds a registry from configured targets.
func NewTargetRegistry(targets []config.SearchTarget) *TargetRegistry {
	r := &TargetRegistry{targets: make(map[string]config.SearchTarget, len(targets))}
	for _, t := range targets {
		if _, ok := r.targets[t.Key]; ok {
			continue
		}
		r.targets[t.Key] = t
		r.keys = append(r.keys, t.Key)
	}
	return r
}

// Get returns the target for a key.
func (r *TargetRegistry) Get(key string) (config.SearchTarget, bool) {
	t, ok := r.targets[key]
	return t, ok
}

// Keys returns the registered target keys in registration order.
func (r *TargetRegistry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}
