package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adpulse-agent/internal/config"
	"github.com/adpulse-agent/internal/pipeline"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/pkg/logger"
)

// JobType names a scheduled job. Each type runs on an independent interval
// and never overlaps itself.
type JobType string

const (
	JobCronScraping JobType = "cron_scraping"
	JobActiveSearch JobType = "active_search"
	JobEnrichment   JobType = "enrichment"
)

// guard is the per-job-type running flag. A timer fire (or external
// trigger) that finds the flag set is skipped, not queued.
type guard struct {
	running atomic.Bool
}

func (g *guard) tryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

func (g *guard) release() {
	g.running.Store(false)
}

// Scheduler owns one interval timer per job type. It holds no persistent
// schedule state: after a restart every job simply resumes on its interval
// from process start, with no catch-up of missed runs.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *pipeline.Pipeline
	cfg      config.SchedulerConfig
	log      *logger.Logger
	guards   map[JobType]*guard
}

// New creates a scheduler for the pipeline. Nothing runs until Start.
func New(p *pipeline.Pipeline, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		pipeline: p,
		cfg:      cfg,
		log:      log.WithComponent("scheduler"),
		guards: map[JobType]*guard{
			JobCronScraping: {},
			JobActiveSearch: {},
			JobEnrichment:   {},
		},
	}
}

// Start registers the interval jobs and starts the timers. A zero interval
// disables the corresponding job.
func (s *Scheduler) Start() {
	s.addIntervalJob(JobCronScraping, s.cfg.ScrapeInterval, s.runCronScraping)
	s.addIntervalJob(JobActiveSearch, s.cfg.SearchInterval, s.runSearchSweep)
	s.addIntervalJob(JobEnrichment, s.cfg.EnrichInterval, s.runEnrichmentSweep)

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop halts the timers. Runs already in flight are allowed to finish;
// there is no mid-run cancellation signal.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("Scheduler stopped")
}

// TryRun executes fn under the job's non-overlap guard. It reports false,
// without running fn, when a run of the same type is already in flight.
// The HTTP and CLI trigger surfaces share this entry point so the guard
// applies uniformly regardless of trigger origin.
func (s *Scheduler) TryRun(job JobType, fn func()) bool {
	g, ok := s.guards[job]
	if !ok {
		fn()
		return true
	}
	if !g.tryAcquire() {
		s.log.Warn().Str("job", string(job)).Msg("Run already in flight, skipping")
		return false
	}
	defer g.release()
	fn()
	return true
}

// addIntervalJob schedules fn every interval under the job's guard
func (s *Scheduler) addIntervalJob(job JobType, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		s.log.Info().Str("job", string(job)).Msg("Job disabled")
		return
	}

	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.TryRun(job, func() {
			fn(context.Background())
		})
	}))

	s.log.Info().
		Str("job", string(job)).
		Dur("interval", interval).
		Msg("Job scheduled")
}

func (s *Scheduler) runCronScraping(ctx context.Context) {
	log := s.log.WithJob(string(JobCronScraping))

	result, err := s.pipeline.RunCronScraping(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled scraping failed")
		return
	}

	log.Info().
		Int("saved", result.Saved).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Scheduled scraping completed")
}

func (s *Scheduler) runSearchSweep(ctx context.Context) {
	log := s.log.WithJob(string(JobActiveSearch))

	for _, key := range s.cfg.SweepTargets {
		result, err := s.pipeline.RunActiveSearch(ctx, key, source.Options{})
		if err != nil {
			log.Error().Err(err).Str("target", key).Msg("Scheduled search failed")
			continue
		}
		log.Info().
			Str("target", key).
			Int("found", result.TotalFound).
			Int("saved", result.Saved).
			Int("skipped", result.Skipped).
			Msg("Scheduled search completed")
	}
}

func (s *Scheduler) runEnrichmentSweep(ctx context.Context) {
	log := s.log.WithJob(string(JobEnrichment))

	result, err := s.pipeline.RunEnrichment(ctx, s.cfg.EnrichBatch)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled enrichment failed")
		return
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("enriched", result.Enriched).
		Int("errors", len(result.Errors)).
		Msg("Scheduled enrichment completed")
}
