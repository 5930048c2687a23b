package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/pipeline"
	"github.com/adpulse-agent/internal/scheduler"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/pkg/logger"
)

// Server is the HTTP trigger/admin surface over the pipeline. Run triggers
// go through the scheduler's non-overlap guard so an external trigger and a
// timer fire of the same job type never run concurrently.
type Server struct {
	engine   *gin.Engine
	pipeline *pipeline.Pipeline
	sched    *scheduler.Scheduler
	repo     storage.Repository
	cls      *classifier.Classifier
	log      *logger.Logger
}

// New creates the server and registers all routes
func New(
	p *pipeline.Pipeline,
	sched *scheduler.Scheduler,
	repo storage.Repository,
	cls *classifier.Classifier,
	log *logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		pipeline: p,
		sched:    sched,
		repo:     repo,
		cls:      cls,
		log:      log.WithComponent("server"),
	}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler exposes the router for an http.Server
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		// Pipeline triggers
		api.POST("/scrape/run", s.RunScrape)
		api.GET("/search/targets", s.ListTargets)
		api.POST("/search/:target", s.RunSearch)
		api.POST("/search/:target/preview", s.PreviewSearch)
		api.POST("/search/save", s.SaveSearchResults)
		api.POST("/deep-scrape", s.RunDeepScrape)
		api.POST("/enrich/run", s.RunEnrich)

		// Articles and reports
		api.GET("/articles", s.ListArticles)
		api.GET("/reports/tags", s.TagReport)

		// Feed administration
		api.GET("/feeds", s.ListFeeds)
		api.POST("/feeds", s.CreateFeed)
		api.PATCH("/feeds/:id", s.RenameFeed)
		api.DELETE("/feeds/:id", s.DeleteFeed)

		// Category administration
		api.GET("/categories", s.ListCategories)
		api.POST("/categories", s.SaveCategory)
		api.DELETE("/categories/:id", s.DeleteCategory)
	}
}

// errorStrings flattens an error list for JSON responses
func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// RunScrape triggers one cron scraping run
func (s *Server) RunScrape(c *gin.Context) {
	var (
		result *pipeline.ScrapeResult
		runErr error
	)
	ran := s.sched.TryRun(scheduler.JobCronScraping, func() {
		result, runErr = s.pipeline.RunCronScraping(c.Request.Context())
	})
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": "cron scraping already running"})
		return
	}
	if runErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"saved":   result.Saved,
		"skipped": result.Skipped,
		"errors":  errorStrings(result.Errors),
	})
}

// searchRequest is the per-invocation search override
type searchRequest struct {
	UseWebScraping      bool   `json:"use_web_scraping"`
	RSSOnly             bool   `json:"rss_only"`
	Window              string `json:"window"` // "", "24h", "7d", "15d"
	MaxArticlesPerQuery int    `json:"max_articles_per_query"`
}

func (r searchRequest) options() (source.Options, error) {
	window, err := source.ParseWindow(r.Window)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		UseWebScraping:      r.UseWebScraping,
		RSSOnly:             r.RSSOnly,
		Window:              window,
		MaxArticlesPerQuery: r.MaxArticlesPerQuery,
	}, nil
}

func (s *Server) bindSearchOptions(c *gin.Context) (source.Options, bool) {
	var req searchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return source.Options{}, false
		}
	}
	opts, err := req.options()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return source.Options{}, false
	}
	return opts, true
}

// ListTargets lists the registered search target keys
func (s *Server) ListTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.pipeline.TargetKeys()})
}

// RunSearch triggers a search-and-save run for one target
func (s *Server) RunSearch(c *gin.Context) {
	opts, ok := s.bindSearchOptions(c)
	if !ok {
		return
	}

	var (
		result *pipeline.SearchResult
		runErr error
	)
	ran := s.sched.TryRun(scheduler.JobActiveSearch, func() {
		result, runErr = s.pipeline.RunActiveSearch(c.Request.Context(), c.Param("target"), opts)
	})
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": "active search already running"})
		return
	}
	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrUnknownTarget) {
			c.JSON(http.StatusNotFound, gin.H{"error": runErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_found": result.TotalFound,
		"saved":       result.Saved,
		"skipped":     result.Skipped,
		"errors":      errorStrings(result.Errors),
	})
}

// PreviewSearch returns search results without admitting them
func (s *Server) PreviewSearch(c *gin.Context) {
	opts, ok := s.bindSearchOptions(c)
	if !ok {
		return
	}

	candidates, searchErrs, err := s.pipeline.PreviewActiveSearch(c.Request.Context(), c.Param("target"), opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownTarget) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": candidates,
		"errors":  errorStrings(searchErrs),
	})
}

// SaveSearchResults admits previously previewed candidates
func (s *Server) SaveSearchResults(c *gin.Context) {
	var req struct {
		Results []source.Candidate `json:"results"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, skipped, errs := s.pipeline.AdmitCandidates(c.Request.Context(), req.Results)
	c.JSON(http.StatusOK, gin.H{
		"saved":   saved,
		"skipped": skipped,
		"errors":  errorStrings(errs),
	})
}

// RunDeepScrape deep-fetches a single URL through the gate's upgrade path
func (s *Server) RunDeepScrape(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	article, err := s.pipeline.DeepScrape(c.Request.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrPageUnreachable):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		case errors.Is(err, source.ErrPageMalformed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, article)
}

// RunEnrich triggers one enrichment sweep
func (s *Server) RunEnrich(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		result *pipeline.EnrichResult
		runErr error
	)
	ran := s.sched.TryRun(scheduler.JobEnrichment, func() {
		result, runErr = s.pipeline.RunEnrichment(c.Request.Context(), limit)
	})
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": "enrichment already running"})
		return
	}
	if runErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned":  result.Scanned,
		"enriched": result.Enriched,
		"errors":   errorStrings(result.Errors),
	})
}

// ListArticles returns stored articles with optional filtering
func (s *Server) ListArticles(c *gin.Context) {
	filter := storage.DefaultArticleFilter()
	if raw := c.Query("status"); raw != "" {
		status := models.ArticleStatus(raw)
		filter.Status = &status
	}
	filter.Tag = c.Query("tag")
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	articles, err := s.repo.ListArticles(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, articles)
}

// TagReport aggregates article counts per tag
func (s *Server) TagReport(c *gin.Context) {
	counts, err := s.repo.CountArticlesByTag(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ListFeeds lists registered feeds
func (s *Server) ListFeeds(c *gin.Context) {
	feeds, err := s.repo.ListFeeds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, feeds)
}

// CreateFeed registers a new feed
func (s *Server) CreateFeed(c *gin.Context) {
	var feed models.Feed
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if feed.Name == "" || feed.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and url are required"})
		return
	}
	if err := s.repo.CreateFeed(c.Request.Context(), &feed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, feed)
}

// RenameFeed corrects a feed's display name; the URL is immutable
func (s *Server) RenameFeed(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed id"})
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	feed, err := s.repo.GetFeedByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	feed.Name = req.Name
	if err := s.repo.UpdateFeed(c.Request.Context(), feed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, feed)
}

// DeleteFeed removes a feed registration
func (s *Server) DeleteFeed(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed id"})
		return
	}
	if err := s.repo.DeleteFeed(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCategories lists tag categories
func (s *Server) ListCategories(c *gin.Context) {
	categories, err := s.repo.ListCategories(c.Request.Context(), false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// SaveCategory creates or updates a tag category and invalidates the
// classifier cache. Enabled defaults to true when omitted; an explicit
// false is preserved.
func (s *Server) SaveCategory(c *gin.Context) {
	var req struct {
		ID       uint     `json:"id"`
		Name     string   `json:"name"`
		Keywords []string `json:"keywords"`
		Color    string   `json:"color"`
		Enabled  *bool    `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	category := models.TagCategory{
		ID:       req.ID,
		Name:     req.Name,
		Keywords: req.Keywords,
		Color:    req.Color,
		Enabled:  req.Enabled == nil || *req.Enabled,
	}
	if err := s.repo.SaveCategory(c.Request.Context(), &category); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cls.Invalidate()
	c.JSON(http.StatusOK, category)
}

// DeleteCategory removes a tag category and invalidates the classifier cache
func (s *Server) DeleteCategory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}
	if err := s.repo.DeleteCategory(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cls.Invalidate()
	c.Status(http.StatusNoContent)
}
