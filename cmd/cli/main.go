package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/config"
	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/pipeline"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/source/page"
	"github.com/adpulse-agent/internal/source/rss"
	"github.com/adpulse-agent/internal/source/websearch"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/internal/storage/sqlite"
	"github.com/adpulse-agent/pkg/logger"
	"github.com/adpulse-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
	pipe    *pipeline.Pipeline
	cls     *classifier.Classifier
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "adpulse",
		Short: "Ad-industry news ingestion pipeline",
		Long: `Ingests advertising/marketing industry news from RSS feeds, targeted
searches and single-page deep fetches, deduplicates the results and
classifies them into keyword-driven tag categories.`,
		PersistentPreRunE: initializeApp,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if repo != nil {
				repo.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(deepScrapeCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(tagsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	client := &http.Client{Timeout: cfg.Sources.FetchTimeout}
	limiter := ratelimit.NewDefaultLimiter()

	feedSource := rss.New(client, limiter, cfg.Sources.UserAgent, log)
	searchSource := websearch.New(client, feedSource, limiter, cfg.Sources.UserAgent, log)
	pageSource := page.New(client, limiter, cfg.Sources.UserAgent, log)

	targets := source.NewTargetRegistry(cfg.Search.Targets)
	cls = classifier.New(repo, log)
	g := gate.New(repo, cls, cfg.Classifier.ReclassifyOnEnrich, log)
	pipe = pipeline.New(repo, feedSource, searchSource, pageSource, g, cls, targets, log)

	return nil
}

func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Feed scraping commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Scrape every registered feed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := pipe.RunCronScraping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Feeds processed: %d\n", result.FeedsProcessed)
			fmt.Printf("Saved:           %d\n", result.Saved)
			fmt.Printf("Skipped:         %d\n", result.Skipped)
			printErrors(result.Errors)
			return nil
		},
	})
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		window  string
		maxHits int
		rssOnly bool
		scrape  bool
	)

	cmd := &cobra.Command{
		Use:   "search [target-key]",
		Short: "Run an active search for a configured target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			win, err := source.ParseWindow(window)
			if err != nil {
				return err
			}
			opts := source.Options{
				UseWebScraping:      scrape,
				RSSOnly:             rssOnly,
				Window:              win,
				MaxArticlesPerQuery: maxHits,
			}

			result, err := pipe.RunActiveSearch(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("Found:   %d\n", result.TotalFound)
			fmt.Printf("Saved:   %d\n", result.Saved)
			fmt.Printf("Skipped: %d\n", result.Skipped)
			printErrors(result.Errors)
			return nil
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "time window: 24h, 7d or 15d")
	cmd.Flags().IntVar(&maxHits, "max", 0, "max articles per query (0 = unlimited)")
	cmd.Flags().BoolVar(&rssOnly, "rss-only", false, "restrict to affiliated feeds")
	cmd.Flags().BoolVar(&scrape, "scrape", false, "also scrape the target's listing page")

	cmd.AddCommand(&cobra.Command{
		Use:   "targets",
		Short: "List configured search targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range pipe.TargetKeys() {
				fmt.Println(key)
			}
			return nil
		},
	})

	return cmd
}

func deepScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deep-scrape [url]",
		Short: "Deep-fetch a single article page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			article, err := pipe.DeepScrape(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Article #%d [%s]\n", article.ID, article.Status)
			fmt.Printf("Title: %s\n", article.Title)
			fmt.Printf("Tags:  %s\n", strings.Join(article.Tags, ", "))
			fmt.Printf("Body:  %d chars\n", len(article.Content))
			return nil
		},
	}
}

func feedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Feed registry administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := repo.ListFeeds(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range feeds {
				fmt.Printf("%d\t%s\t%s\n", f.ID, f.Name, f.URL)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [name] [url]",
		Short: "Register a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := &models.Feed{Name: args[0], URL: args[1]}
			if err := repo.CreateFeed(cmd.Context(), feed); err != nil {
				return err
			}
			fmt.Printf("Registered feed #%d\n", feed.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [id]",
		Short: "Delete a feed registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid feed id %q", args[0])
			}
			return repo.DeleteFeed(cmd.Context(), id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Import feeds from the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			imported := 0
			for _, seed := range cfg.Sources.Feeds {
				if seed.URL == "" {
					continue
				}
				if _, err := repo.GetFeedByURL(cmd.Context(), seed.URL); err == nil {
					continue
				} else if !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				if err := repo.CreateFeed(cmd.Context(), &models.Feed{Name: seed.Name, URL: seed.URL}); err != nil {
					return err
				}
				imported++
			}
			fmt.Printf("Imported %d feeds\n", imported)
			return nil
		},
	})

	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Tag category administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tag categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := repo.ListCategories(cmd.Context(), false)
			if err != nil {
				return err
			}
			for _, cat := range categories {
				state := "enabled"
				if !cat.Enabled {
					state = "disabled"
				}
				fmt.Printf("%d\t%s\t[%s]\t%s\n", cat.ID, cat.Name, state, strings.Join(cat.Keywords, ", "))
			}
			return nil
		},
	})

	var keywords []string
	var color string
	addCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create or update a tag category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := repo.GetCategoryByName(cmd.Context(), args[0])
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				category = &models.TagCategory{Name: args[0], Enabled: true}
			}
			category.Keywords = keywords
			if color != "" {
				category.Color = color
			}
			if err := repo.SaveCategory(cmd.Context(), category); err != nil {
				return err
			}
			cls.Invalidate()
			fmt.Printf("Saved category #%d\n", category.ID)
			return nil
		},
	}
	addCmd.Flags().StringSliceVar(&keywords, "keywords", nil, "matching keywords")
	addCmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(setEnabledCmd("enable", true))
	cmd.AddCommand(setEnabledCmd("disable", false))

	return cmd
}

func setEnabledCmd(use string, enabled bool) *cobra.Command {
	short := "Enable a tag category"
	if !enabled {
		short = "Disable a tag category"
	}
	return &cobra.Command{
		Use:   use + " [name]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := repo.GetCategoryByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			category.Enabled = enabled
			if err := repo.SaveCategory(cmd.Context(), category); err != nil {
				return err
			}
			cls.Invalidate()
			return nil
		},
	}
}

func tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Tag maintenance passes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Show article counts per tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := repo.CountArticlesByTag(cmd.Context())
			if err != nil {
				return err
			}
			for tag, count := range counts {
				fmt.Printf("%s\t%d\n", tag, count)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reclassify",
		Short: "Re-run classification over all stored articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			updated, err := pipe.ReclassifyAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Updated %d articles\n", updated)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "strip [tag]",
		Short: "Remove a stray tag from every article carrying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updated, err := pipe.StripTag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Stripped %q from %d articles\n", args[0], updated)
			return nil
		},
	})

	return cmd
}

func printErrors(errs []error) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("Errors (%d):\n", len(errs))
	for _, e := range errs {
		fmt.Printf("  - %v\n", e)
	}
}
