package page

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/pkg/logger"
	"github.com/adpulse-agent/pkg/ratelimit"
)

// Source implements the deep-fetch capability: a single page fetch parsed
// into one enriched candidate.
type Source struct {
	client    *http.Client
	limiter   *ratelimit.MultiLimiter
	userAgent string
	log       *logger.Logger
}

// New creates a new deep-fetch adapter
func New(client *http.Client, limiter *ratelimit.MultiLimiter, userAgent string, log *logger.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Source{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		log:       log.WithSource("page", "deep-fetch"),
	}
}

// FetchPage fetches and parses the full page at pageURL. There is no
// partial result: any failure is terminal for this request.
func (s *Source) FetchPage(ctx context.Context, pageURL string) (source.Candidate, error) {
	s.log.Debug().Str("url", pageURL).Msg("Deep fetching page")

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterScrape); err != nil {
			return source.Candidate{}, fmt.Errorf("%w: %v", source.ErrPageUnreachable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return source.Candidate{}, fmt.Errorf("%w: build request for %s: %v", source.ErrPageUnreachable, pageURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return source.Candidate{}, fmt.Errorf("%w: %s: %v", source.ErrPageUnreachable, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return source.Candidate{}, fmt.Errorf("%w: %s returned %s", source.ErrPageUnreachable, pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return source.Candidate{}, fmt.Errorf("%w: %s: %v", source.ErrPageMalformed, pageURL, err)
	}

	cand := source.Candidate{
		URL:         pageURL,
		Title:       extractTitle(doc),
		Content:     extractBody(doc),
		PublishedAt: extractPublished(doc),
	}

	if cand.Title == "" && cand.Content == "" {
		return source.Candidate{}, fmt.Errorf("%w: %s yielded no title or body", source.ErrPageMalformed, pageURL)
	}

	s.log.Info().
		Str("url", pageURL).
		Int("body_len", len(cand.Content)).
		Msg("Deep fetched page")

	return cand, nil
}

// extractTitle prefers the canonical og:title over the document title
func extractTitle(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}
	if h1 := strings.TrimSpace(doc.Find("article h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractBody collects paragraph text, preferring the article element
func extractBody(doc *goquery.Document) string {
	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var parts []string
	scope.Find("p").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// extractPublished looks for a machine-readable publication date
func extractPublished(doc *goquery.Document) time.Time {
	if content, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(content)); err == nil {
			return t
		}
	}
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(datetime)); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// Ensure Source implements the deep-fetch capability
var _ source.DeepFetchSource = (*Source)(nil)
