package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/config"
	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/pipeline"
	"github.com/adpulse-agent/internal/scheduler"
	"github.com/adpulse-agent/internal/server"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/source/page"
	"github.com/adpulse-agent/internal/source/rss"
	"github.com/adpulse-agent/internal/source/websearch"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/internal/storage/sqlite"
	"github.com/adpulse-agent/pkg/logger"
	"github.com/adpulse-agent/pkg/ratelimit"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "adpulse-scheduler",
		Short: "Background scheduler for the ad-industry news pipeline",
		Long: `Runs the scheduled ingestion jobs (feed scraping, active search sweeps,
enrichment) and serves the HTTP trigger/admin API. This daemon should be
run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting adpulse scheduler")

	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedFeeds(cmd.Context(), repo, cfg.Sources.Feeds, log); err != nil {
		return fmt.Errorf("failed to import configured feeds: %w", err)
	}

	pipe, cls := buildPipeline(cfg, repo, log)

	sched := scheduler.New(pipe, cfg.Scheduler, log)
	sched.Start()
	defer sched.Stop()

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		srv := server.New(pipe, sched, repo, cls, log)
		httpServer = &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: srv.Handler(),
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP API listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}

	return nil
}

// buildPipeline wires the source adapters, gate, classifier and runners
func buildPipeline(cfg *config.Config, repo storage.Repository, log *logger.Logger) (*pipeline.Pipeline, *classifier.Classifier) {
	client := &http.Client{Timeout: cfg.Sources.FetchTimeout}
	limiter := ratelimit.NewDefaultLimiter()

	feedSource := rss.New(client, limiter, cfg.Sources.UserAgent, log)
	searchSource := websearch.New(client, feedSource, limiter, cfg.Sources.UserAgent, log)
	pageSource := page.New(client, limiter, cfg.Sources.UserAgent, log)

	targets := source.NewTargetRegistry(cfg.Search.Targets)
	cls := classifier.New(repo, log)
	g := gate.New(repo, cls, cfg.Classifier.ReclassifyOnEnrich, log)

	return pipeline.New(repo, feedSource, searchSource, pageSource, g, cls, targets, log), cls
}

// seedFeeds registers configured feeds that are not yet in the store
func seedFeeds(ctx context.Context, repo storage.Repository, seeds []config.FeedSeed, log *logger.Logger) error {
	for _, seed := range seeds {
		if seed.URL == "" {
			continue
		}
		if _, err := repo.GetFeedByURL(ctx, seed.URL); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		feed := &models.Feed{Name: seed.Name, URL: seed.URL}
		if err := repo.CreateFeed(ctx, feed); err != nil {
			return err
		}
		log.Info().Str("name", seed.Name).Str("url", seed.URL).Msg("Registered configured feed")
	}
	return nil
}
