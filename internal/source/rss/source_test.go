package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse-agent/internal/source"
	"github.com/adpulse-agent/pkg/logger"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>AdNews Wire</title>
    <item>
      <title>Holding company merges its &lt;b&gt;media&lt;/b&gt; arms</title>
      <link>https://adnews.example/merger</link>
      <description>&lt;p&gt;Two networks become one.&lt;/p&gt;</description>
      <pubDate>Tue, 18 Mar 2025 09:30:00 GMT</pubDate>
    </item>
    <item>
      <title>CTV budgets keep climbing</title>
      <link>https://adnews.example/ctv</link>
      <description>Streaming spend outpaces linear.</description>
    </item>
    <item>
      <title>Item without a link is dropped</title>
      <description>no link here</description>
    </item>
  </channel>
</rss>`

func TestFetchFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "adpulse-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	s := New(srv.Client(), nil, "adpulse-test/1.0", logger.Nop())

	cands, err := s.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	first := cands[0]
	assert.Equal(t, "Holding company merges its media arms", first.Title)
	assert.Equal(t, "https://adnews.example/merger", first.URL)
	assert.Equal(t, "Two networks become one.", first.Summary)
	assert.Equal(t, "AdNews Wire", first.SourceName)
	assert.Equal(t, time.Date(2025, time.March, 18, 9, 30, 0, 0, time.UTC), first.PublishedAt.UTC())
}

// An item with no usable date is stamped with the fetch time, not zero.
func TestFetchFeed_MissingDateStampedNow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	s := New(srv.Client(), nil, "adpulse-test/1.0", logger.Nop())

	before := time.Now()
	cands, err := s.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	undated := cands[1]
	assert.False(t, undated.PublishedAt.Before(before))
	assert.False(t, undated.PublishedAt.After(time.Now()))
}

func TestFetchFeed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.Client(), nil, "adpulse-test/1.0", logger.Nop())

	_, err := s.FetchFeed(context.Background(), srv.URL)
	assert.ErrorIs(t, err, source.ErrSourceUnreachable)
}

func TestFetchFeed_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	s := New(&http.Client{Timeout: time.Second}, nil, "adpulse-test/1.0", logger.Nop())

	_, err := s.FetchFeed(context.Background(), srv.URL)
	assert.ErrorIs(t, err, source.ErrSourceUnreachable)
}

func TestFetchFeed_MalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer srv.Close()

	s := New(srv.Client(), nil, "adpulse-test/1.0", logger.Nop())

	_, err := s.FetchFeed(context.Background(), srv.URL)
	assert.ErrorIs(t, err, source.ErrSourceMalformed)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Two lines joined", cleanText("<p>Two lines</p><br/>joined"))
	assert.Equal(t, "plain", cleanText("  plain  "))
	assert.Equal(t, "a b", cleanText("a\n\n  b"))
}
