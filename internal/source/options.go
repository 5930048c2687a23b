package source

import (
	"fmt"
	"sort"
	"time"
)

// TimeWindow restricts search results to a recency window.
type TimeWindow string

const (
	WindowAll TimeWindow = ""
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	Window15d TimeWindow = "15d"
)

// ParseWindow maps a caller-supplied window string to a TimeWindow.
func ParseWindow(s string) (TimeWindow, error) {
	switch TimeWindow(s) {
	case WindowAll, Window24h, Window7d, Window15d:
		return TimeWindow(s), nil
	}
	return WindowAll, fmt.Errorf("unknown time window %q", s)
}

// Duration returns the window length; ok is false for the unbounded window.
func (w TimeWindow) Duration() (time.Duration, bool) {
	switch w {
	case Window24h:
		return 24 * time.Hour, true
	case Window7d:
		return 7 * 24 * time.Hour, true
	case Window15d:
		return 15 * 24 * time.Hour, true
	}
	return 0, false
}

// Options is a per-invocation override of search-target behavior. The zero
// value means adapter-default behavior.
type Options struct {
	UseWebScraping      bool       // Also scrape the target's listing page
	RSSOnly             bool       // Restrict to affiliated feeds
	Window              TimeWindow // Discard candidates older than the window
	MaxArticlesPerQuery int        // Cap on total candidates, 0 means unlimited
}

// FilterByWindow drops candidates whose published-at falls outside the
// window relative to now. Candidates without a date must be stamped with
// the fetch time by the adapter before filtering, so they always pass.
func FilterByWindow(cands []Candidate, w TimeWindow, now time.Time) []Candidate {
	d, ok := w.Duration()
	if !ok {
		return cands
	}
	cutoff := now.Add(-d)
	out := cands[:0]
	for _, c := range cands {
		if !c.PublishedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// SortAndCap orders candidates most-recent-first and truncates to max.
// URL is the tiebreaker for equal timestamps so truncation is deterministic
// for a given input set.
func SortAndCap(cands []Candidate, max int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if !cands[i].PublishedAt.Equal(cands[j].PublishedAt) {
			return cands[i].PublishedAt.After(cands[j].PublishedAt)
		}
		return cands[i].URL < cands[j].URL
	})
	if max > 0 && len(cands) > max {
		cands = cands[:max]
	}
	return cands
}
