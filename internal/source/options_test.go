package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	for _, valid := range []string{"", "24h", "7d", "15d"} {
		w, err := ParseWindow(valid)
		require.NoError(t, err)
		assert.Equal(t, TimeWindow(valid), w)
	}

	_, err := ParseWindow("30d")
	assert.Error(t, err)
}

func TestFilterByWindow_SevenDays(t *testing.T) {
	now := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)

	cands := []Candidate{
		{URL: "https://a.example/1", PublishedAt: now.Add(-time.Hour)},
		{URL: "https://a.example/2", PublishedAt: now.AddDate(0, 0, -6)},
		{URL: "https://a.example/3", PublishedAt: now.AddDate(0, 0, -8)},
		{URL: "https://a.example/4", PublishedAt: now}, // stamped "found now"
	}

	kept := FilterByWindow(cands, Window7d, now)

	require.Len(t, kept, 3)
	for _, c := range kept {
		assert.NotEqual(t, "https://a.example/3", c.URL)
	}
}

func TestFilterByWindow_Unbounded(t *testing.T) {
	now := time.Now()
	cands := []Candidate{
		{URL: "u1", PublishedAt: now.AddDate(-1, 0, 0)},
		{URL: "u2", PublishedAt: now},
	}
	assert.Len(t, FilterByWindow(cands, WindowAll, now), 2)
}

func TestSortAndCap_RetainsMostRecent(t *testing.T) {
	base := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	cands := []Candidate{
		{URL: "u3", PublishedAt: base.Add(3 * time.Hour)},
		{URL: "u1", PublishedAt: base.Add(1 * time.Hour)},
		{URL: "u5", PublishedAt: base.Add(5 * time.Hour)},
		{URL: "u2", PublishedAt: base.Add(2 * time.Hour)},
		{URL: "u4", PublishedAt: base.Add(4 * time.Hour)},
	}

	capped := SortAndCap(cands, 3)

	require.Len(t, capped, 3)
	assert.Equal(t, "u5", capped[0].URL)
	assert.Equal(t, "u4", capped[1].URL)
	assert.Equal(t, "u3", capped[2].URL)
}

// Equal timestamps fall back to URL ordering so truncation stays
// deterministic for a given input set.
func TestSortAndCap_DeterministicTiebreak(t *testing.T) {
	ts := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	cands := []Candidate{
		{URL: "https://b.example", PublishedAt: ts},
		{URL: "https://a.example", PublishedAt: ts},
		{URL: "https://c.example", PublishedAt: ts},
	}

	capped := SortAndCap(cands, 2)

	require.Len(t, capped, 2)
	assert.Equal(t, "https://a.example", capped[0].URL)
	assert.Equal(t, "https://b.example", capped[1].URL)
}

func TestSortAndCap_NoCap(t *testing.T) {
	cands := []Candidate{
		{URL: "u1", PublishedAt: time.Now()},
		{URL: "u2", PublishedAt: time.Now().Add(time.Hour)},
	}
	assert.Len(t, SortAndCap(cands, 0), 2)
}

func TestTargetRegistry(t *testing.T) {
	reg := NewTargetRegistry(nil)
	_, ok := reg.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, reg.Keys())
}
