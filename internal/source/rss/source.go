package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/pkg/logger"
	"github.com/adpulse-agent/pkg/ratelimit"
)

// Source implements the feed capability over RSS/Atom documents
type Source struct {
	client    *http.Client
	parser    *gofeed.Parser
	limiter   *ratelimit.MultiLimiter
	userAgent string
	log       *logger.Logger
}

// New creates a new RSS source adapter
func New(client *http.Client, limiter *ratelimit.MultiLimiter, userAgent string, log *logger.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Source{
		client:    client,
		parser:    gofeed.NewParser(),
		limiter:   limiter,
		userAgent: userAgent,
		log:       log.WithSource("rss", "feed"),
	}
}

// FetchFeed retrieves and parses the feed at feedURL into candidates
func (s *Source) FetchFeed(ctx context.Context, feedURL string) ([]source.Candidate, error) {
	s.log.Debug().Str("url", feedURL).Msg("Fetching feed")

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterFeed); err != nil {
			return nil, fmt.Errorf("%w: %v", source.ErrSourceUnreachable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", source.ErrSourceUnreachable, feedURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceUnreachable, feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", source.ErrSourceUnreachable, feedURL, resp.Status)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceMalformed, feedURL, err)
	}

	candidates := make([]source.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		candidates = append(candidates, source.Candidate{
			Title:       cleanText(item.Title),
			URL:         item.Link,
			Summary:     cleanText(itemSummary(item)),
			PublishedAt: itemDate(item),
			SourceName:  feed.Title,
		})
	}

	s.log.Info().
		Int("count", len(candidates)).
		Str("url", feedURL).
		Msg("Fetched feed candidates")

	return candidates, nil
}

// itemSummary prefers the description, falling back to full content
func itemSummary(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

// itemDate resolves the best-available published date, falling back to
// the update date and then to "found now"
func itemDate(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Now()
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	text = result.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// Ensure Source implements the feed capability
var _ source.FeedSource = (*Source)(nil)
