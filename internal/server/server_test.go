package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse-agent/internal/classifier"
	"github.com/adpulse-agent/internal/config"
	"github.com/adpulse-agent/internal/gate"
	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/pipeline"
	"github.com/adpulse-agent/internal/scheduler"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/internal/storage"
	"github.com/adpulse-agent/internal/storage/sqlite"
	"github.com/adpulse-agent/pkg/logger"
)

type stubFeedSource struct {
	candidates map[string][]source.Candidate
}

func (s *stubFeedSource) FetchFeed(ctx context.Context, feedURL string) ([]source.Candidate, error) {
	return s.candidates[feedURL], nil
}

type stubSearchSource struct {
	candidates []source.Candidate
}

func (s *stubSearchSource) Search(ctx context.Context, target config.SearchTarget, opts source.Options) ([]source.Candidate, []error) {
	return s.candidates, nil
}

type stubPageSource struct {
	pages map[string]source.Candidate
}

func (s *stubPageSource) FetchPage(ctx context.Context, url string) (source.Candidate, error) {
	cand, ok := s.pages[url]
	if !ok {
		return source.Candidate{}, fmt.Errorf("%w: %s", source.ErrPageUnreachable, url)
	}
	return cand, nil
}

type testServer struct {
	srv    *Server
	sched  *scheduler.Scheduler
	repo   storage.Repository
	feeds  *stubFeedSource
	search *stubSearchSource
	pages  *stubPageSource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate())

	cls := classifier.New(repo, logger.Nop())
	g := gate.New(repo, cls, false, logger.Nop())

	ts := &testServer{
		repo:   repo,
		feeds:  &stubFeedSource{candidates: map[string][]source.Candidate{}},
		search: &stubSearchSource{},
		pages:  &stubPageSource{pages: map[string]source.Candidate{}},
	}

	targets := source.NewTargetRegistry([]config.SearchTarget{
		{Key: "media", Name: "Media Buying", Query: "media buying news"},
	})
	pipe := pipeline.New(repo, ts.feeds, ts.search, ts.pages, g, cls, targets, logger.Nop())
	ts.sched = scheduler.New(pipe, config.SchedulerConfig{}, logger.Nop())
	ts.srv = New(pipe, ts.sched, repo, cls, logger.Nop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// body is a shorthand for JSON request payloads
type body map[string]any

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTargets(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/search/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Targets []string `json:"targets"`
	}
	decode(t, rec, &body)
	assert.Equal(t, []string{"media"}, body.Targets)
}

func TestRunSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.search.candidates = []source.Candidate{
		{Title: "found", URL: "https://results.example/1", PublishedAt: time.Now()},
	}

	rec := ts.do(t, http.MethodPost, "/api/search/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TotalFound int `json:"total_found"`
		Saved      int `json:"saved"`
		Skipped    int `json:"skipped"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.TotalFound)
	assert.Equal(t, 1, body.Saved)
}

func TestRunSearch_UnknownTarget(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/search/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunSearch_InvalidWindow(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/search/media", body{"window": "90d"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunSearch_ConflictWhileRunning(t *testing.T) {
	ts := newTestServer(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go ts.sched.TryRun(scheduler.JobActiveSearch, func() {
		close(started)
		<-release
	})
	<-started

	rec := ts.do(t, http.MethodPost, "/api/search/media", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
}

func TestPreviewThenSave(t *testing.T) {
	ts := newTestServer(t)
	ts.search.candidates = []source.Candidate{
		{Title: "previewed", URL: "https://results.example/1", PublishedAt: time.Now()},
	}

	rec := ts.do(t, http.MethodPost, "/api/search/media/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var preview struct {
		Results []source.Candidate `json:"results"`
	}
	decode(t, rec, &preview)
	require.Len(t, preview.Results, 1)

	// Nothing persisted by the preview
	articles, err := ts.repo.ListArticles(context.Background(), storage.ArticleFilter{})
	require.NoError(t, err)
	assert.Empty(t, articles)

	rec = ts.do(t, http.MethodPost, "/api/search/save", body{"results": preview.Results})
	require.Equal(t, http.StatusOK, rec.Code)

	var saveBody struct {
		Saved   int `json:"saved"`
		Skipped int `json:"skipped"`
	}
	decode(t, rec, &saveBody)
	assert.Equal(t, 1, saveBody.Saved)
}

func TestRunDeepScrape(t *testing.T) {
	ts := newTestServer(t)
	ts.pages.pages["https://adnews.example/story"] = source.Candidate{
		URL:     "https://adnews.example/story",
		Title:   "Full story",
		Content: "the whole body",
	}

	rec := ts.do(t, http.MethodPost, "/api/deep-scrape", body{"url": "https://adnews.example/story"})
	require.Equal(t, http.StatusOK, rec.Code)

	var article models.Article
	decode(t, rec, &article)
	assert.Equal(t, models.ArticleStatusEnriched, article.Status)
}

func TestRunDeepScrape_UnreachablePage(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/deep-scrape", body{"url": "https://dead.example"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRunDeepScrape_MissingURL(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/deep-scrape", body{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunScrapeAndListArticles(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	feed := &models.Feed{Name: "AdNews", URL: "https://adnews.example/rss"}
	require.NoError(t, ts.repo.CreateFeed(ctx, feed))
	ts.feeds.candidates[feed.URL] = []source.Candidate{
		{Title: "one", URL: "https://adnews.example/1", PublishedAt: time.Now()},
	}

	rec := ts.do(t, http.MethodPost, "/api/scrape/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/articles?status=processed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var articles []models.Article
	decode(t, rec, &articles)
	require.Len(t, articles, 1)
	assert.Equal(t, "one", articles[0].Title)
}

func TestFeedAdministration(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/feeds", body{"name": "AdNews", "url": "https://adnews.example/rss"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var feed models.Feed
	decode(t, rec, &feed)
	require.NotZero(t, feed.ID)

	rec = ts.do(t, http.MethodPost, "/api/feeds", body{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/feeds/%d", feed.ID), body{"name": "AdNews Daily"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/feeds/9999", body{"name": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/feeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feeds []models.Feed
	decode(t, rec, &feeds)
	require.Len(t, feeds, 1)
	assert.Equal(t, "AdNews Daily", feeds[0].Name)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/feeds/%d", feed.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// Category writes must take effect on the very next classification.
func TestCategoryWritesInvalidateClassifier(t *testing.T) {
	ts := newTestServer(t)

	ts.search.candidates = []source.Candidate{
		{Title: "programmatic pipes before", URL: "https://results.example/before", PublishedAt: time.Now()},
	}
	rec := ts.do(t, http.MethodPost, "/api/search/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	before, err := ts.repo.GetArticleByURL(context.Background(), "https://results.example/before")
	require.NoError(t, err)
	assert.Empty(t, before.Tags)

	rec = ts.do(t, http.MethodPost, "/api/categories", body{
		"name":     "adtech",
		"keywords": []string{"programmatic"},
		"enabled":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ts.search.candidates = []source.Candidate{
		{Title: "programmatic pipes after", URL: "https://results.example/after", PublishedAt: time.Now()},
	}
	rec = ts.do(t, http.MethodPost, "/api/search/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := ts.repo.GetArticleByURL(context.Background(), "https://results.example/after")
	require.NoError(t, err)
	assert.Equal(t, models.StringSlice{"adtech"}, after.Tags)
}

// A category created disabled must stay disabled and its keywords must not
// influence classification; omitting "enabled" means enabled.
func TestSaveCategory_DisabledStaysDisabled(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.do(t, http.MethodPost, "/api/categories", body{
		"name":     "dormant",
		"keywords": []string{"programmatic"},
		"enabled":  false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := ts.repo.GetCategoryByName(ctx, "dormant")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	ts.search.candidates = []source.Candidate{
		{Title: "programmatic pipes", URL: "https://results.example/inert", PublishedAt: time.Now()},
	}
	rec = ts.do(t, http.MethodPost, "/api/search/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	article, err := ts.repo.GetArticleByURL(ctx, "https://results.example/inert")
	require.NoError(t, err)
	assert.Empty(t, article.Tags)

	rec = ts.do(t, http.MethodPost, "/api/categories", body{
		"name":     "implied",
		"keywords": []string{"attribution"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	implied, err := ts.repo.GetCategoryByName(ctx, "implied")
	require.NoError(t, err)
	assert.True(t, implied.Enabled)
}

func TestTagReport(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	seed := []*models.Article{
		{URL: "https://x.example/1", Title: "a", Status: models.ArticleStatusProcessed, Tags: models.StringSlice{"adtech"}},
		{URL: "https://x.example/2", Title: "b", Status: models.ArticleStatusEnriched, Tags: models.StringSlice{"adtech", "agencies"}},
	}
	for _, a := range seed {
		_, err := ts.repo.FindOrCreateArticle(ctx, a)
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/reports/tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts map[string]int
	decode(t, rec, &counts)
	assert.Equal(t, 2, counts["adtech"])
	assert.Equal(t, 1, counts["agencies"])
}
