package pipeline

import (
	"errors"
	"time"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/pkg/logger"
)

// ErrUnknownTarget is returned when a caller names a search target that is
// not in the registry.
var ErrUnknownTarget = errors.New("unknown search target")

// maxConsecutiveStorageFailures aborts a run when the store looks down
// rather than one record being bad.
const maxConsecutiveStorageFailures = 3

// Pipeline owns the three ingestion workflows: scheduled feed scraping,
// active search, and deep scrape, plus the enrichment sweep built on the
// latter. All persistence goes through the gate.
type Pipeline struct {
	repo    storage.Repository
	feeds   source.FeedSource
	search  source.SearchSource
	pages   source.DeepFetchSource
	gate    *gate.Gate
	cls     *classifier.Classifier
	targets *source.TargetRegistry
	log     *logger.Logger
}

// New wires the runners
func New(
	repo storage.Repository,
	feeds source.FeedSource,
	search source.SearchSource,
	pages source.DeepFetchSource,
	g *gate.Gate,
	cls *classifier.Classifier,
	targets *source.TargetRegistry,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		repo:    repo,
		feeds:   feeds,
		search:  search,
		pages:   pages,
		gate:    g,
		cls:     cls,
		targets: targets,
		log:     log.WithComponent("pipeline"),
	}
}

// ScrapeResult reports one cron scraping run
type ScrapeResult struct {
	FeedsProcessed int
	Saved          int
	Skipped        int
	Errors         []error
	Duration       time.Duration
}

// SearchResult reports one active-search run
type SearchResult struct {
	TotalFound int
	Saved      int
	Skipped    int
	Errors     []error
	Duration   time.Duration
}

// EnrichResult reports one enrichment sweep
type EnrichResult struct {
	Scanned  int
	Enriched int
	Errors   []error
	Duration time.Duration
}
