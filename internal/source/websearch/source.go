package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/adpulse-agent/internal/config"
	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/pkg/logger"
	"github.com/adpulse-agent/pkg/ratelimit"
)

const newsSearchBase = "https://news.google.com/rss/search"

// Source implements the active-search capability. It combines three legs:
// the Google News RSS search surface for the target's query, an optional
// goquery scrape of the target's own listing page, and the feed capability
// over the target's affiliated feeds.
type Source struct {
	client     *http.Client
	parser     *gofeed.Parser
	feeds      source.FeedSource
	limiter    *ratelimit.MultiLimiter
	userAgent  string
	searchBase string // Defaults to the Google News RSS endpoint
	now        func() time.Time
	log        *logger.Logger
}

// New creates a new active-search adapter. feeds runs the affiliated-feed leg.
func New(client *http.Client, feeds source.FeedSource, limiter *ratelimit.MultiLimiter, userAgent string, log *logger.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Source{
		client:    client,
		parser:    gofeed.NewParser(),
		feeds:     feeds,
		limiter:   limiter,
		userAgent: userAgent,
		now:       time.Now,
		log:       log.WithSource("websearch", "search"),
	}
}

// WithClock overrides the clock used for window filtering and undated
// candidates. Intended for tests.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

// WithSearchBase overrides the search surface base URL. Intended for tests.
func (s *Source) WithSearchBase(base string) *Source {
	s.searchBase = base
	return s
}

// Search runs the configured legs for the target and returns the merged,
// window-filtered, capped candidate set. Per-leg failures land in the error
// list and do not abort the remaining legs.
func (s *Source) Search(ctx context.Context, target config.SearchTarget, opts source.Options) ([]source.Candidate, []error) {
	var (
		candidates []source.Candidate
		errs       []error
	)

	if !opts.RSSOnly {
		found, err := s.querySearchSurface(ctx, target)
		if err != nil {
			errs = append(errs, err)
		}
		candidates = append(candidates, found...)

		if opts.UseWebScraping && target.SiteURL != "" {
			scraped, err := s.scrapeListing(ctx, target)
			if err != nil {
				errs = append(errs, err)
			}
			candidates = append(candidates, scraped...)
		}
	}

	for _, feedURL := range target.FeedURLs {
		found, err := s.feeds.FetchFeed(ctx, feedURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("target %s feed %s: %w", target.Key, feedURL, err))
			continue
		}
		candidates = append(candidates, found...)
	}

	now := s.now()
	for i := range candidates {
		if candidates[i].PublishedAt.IsZero() {
			// No date from the source: treat as found now
			candidates[i].PublishedAt = now
		}
	}

	candidates = source.FilterByWindow(candidates, opts.Window, now)
	candidates = source.SortAndCap(candidates, opts.MaxArticlesPerQuery)

	s.log.Info().
		Str("target", target.Key).
		Int("count", len(candidates)).
		Int("errors", len(errs)).
		Msg("Active search completed")

	return candidates, errs
}

// querySearchSurface runs the target's query against the news search RSS
// endpoint and parses the result like any other feed.
func (s *Source) querySearchSurface(ctx context.Context, target config.SearchTarget) ([]source.Candidate, error) {
	base := s.searchBase
	if base == "" {
		base = newsSearchBase
	}

	q := url.Values{}
	q.Set("q", target.Query)
	q.Set("hl", "en-US")
	searchURL := base + "?" + q.Encode()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterSearch); err != nil {
			return nil, fmt.Errorf("%w: %v", source.ErrSourceUnreachable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build search request: %v", source.ErrSourceUnreachable, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", source.ErrSourceUnreachable, target.Key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search %s returned %s", source.ErrSourceUnreachable, target.Key, resp.Status)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", source.ErrSourceMalformed, target.Key, err)
	}

	candidates := make([]source.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}
		candidates = append(candidates, source.Candidate{
			Title:       strings.TrimSpace(item.Title),
			URL:         item.Link,
			Summary:     strings.TrimSpace(item.Description),
			PublishedAt: published,
			SourceName:  target.Name,
		})
	}

	return candidates, nil
}

// scrapeListing walks the target's listing page and extracts article links
// via the configured selector.
func (s *Source) scrapeListing(ctx context.Context, target config.SearchTarget) ([]source.Candidate, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterScrape); err != nil {
			return nil, fmt.Errorf("%w: %v", source.ErrSourceUnreachable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.SiteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build listing request: %v", source.ErrSourceUnreachable, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", source.ErrSourceUnreachable, target.SiteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: listing %s returned %s", source.ErrSourceUnreachable, target.SiteURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", source.ErrSourceMalformed, target.SiteURL, err)
	}

	selector := target.SiteSelector
	if selector == "" {
		selector = "article a[href]"
	}

	base, err := url.Parse(target.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: listing base url: %v", source.ErrSourceMalformed, err)
	}

	var candidates []source.Candidate
	seen := map[string]struct{}{}
	doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		link, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := link.String()
		if _, dup := seen[abs]; dup {
			return
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return
		}
		seen[abs] = struct{}{}
		candidates = append(candidates, source.Candidate{
			Title:      title,
			URL:        abs,
			SourceName: target.Name,
		})
	})

	return candidates, nil
}

// Ensure Source implements the active-search capability
var _ source.SearchSource = (*Source)(nil)
