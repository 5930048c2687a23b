package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse-agent/internal/models"
	"github.com/adpulse-agent/internal/storage/sqlite"
	"github.com/adpulse-agent/pkg/logger"
)

func testCategories() []*models.TagCategory {
	return []*models.TagCategory{
		{Name: "adtech", Keywords: models.StringSlice{"programmatic", "dsp", "header bidding"}, Enabled: true},
		{Name: "agencies", Keywords: models.StringSlice{"agency", "pitch"}, Enabled: true},
		{Name: "retired", Keywords: models.StringSlice{"campaign"}, Enabled: false},
	}
}

func TestMatch_AnyKeywordAssigns(t *testing.T) {
	tags := Match(testCategories(), "WPP wins the media pitch after a programmatic review")
	assert.Equal(t, []string{"adtech", "agencies"}, tags)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	tags := Match(testCategories(), "PROGRAMMATIC spend keeps climbing")
	assert.Equal(t, []string{"adtech"}, tags)
}

func TestMatch_DiacriticInsensitive(t *testing.T) {
	cats := []*models.TagCategory{
		{Name: "fr-market", Keywords: models.StringSlice{"publicité"}, Enabled: true},
	}
	assert.Equal(t, []string{"fr-market"}, Match(cats, "Le marché de la publicite en 2025"))
	assert.Equal(t, []string{"fr-market"}, Match(cats, "Le marché de la PUBLICITÉ en 2025"))
}

func TestMatch_NoMatchesYieldsEmpty(t *testing.T) {
	tags := Match(testCategories(), "Quarterly earnings beat expectations")
	assert.Empty(t, tags)
}

// Disabled categories must never affect the output, even when the text
// contains their keywords.
func TestMatch_DisabledCategoryInert(t *testing.T) {
	tags := Match(testCategories(), "New campaign launches nationwide")
	assert.Empty(t, tags)
}

func TestMatch_Idempotent(t *testing.T) {
	text := "Agency consolidates its programmatic buying"
	first := Match(testCategories(), text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Match(testCategories(), text))
	}
}

func TestMatch_EmptyKeywordSkipped(t *testing.T) {
	cats := []*models.TagCategory{
		{Name: "broken", Keywords: models.StringSlice{""}, Enabled: true},
	}
	assert.Empty(t, Match(cats, "anything at all"))
}

// A category name that is itself a meaningful substring of unrelated text
// will match like any other keyword; the repair is a maintenance strip, not
// classifier special-casing.
func TestMatch_SelfReferentialKeywordStillMatches(t *testing.T) {
	cats := []*models.TagCategory{
		{Name: "ads", Keywords: models.StringSlice{"ads"}, Enabled: true},
	}
	assert.Equal(t, []string{"ads"}, Match(cats, "Downloads jumped last week"))
}

func TestClassifier_CacheAndInvalidate(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Migrate())

	ctx := context.Background()
	require.NoError(t, repo.SaveCategory(ctx, &models.TagCategory{
		Name:     "adtech",
		Keywords: models.StringSlice{"programmatic"},
		Enabled:  true,
	}))

	cls := New(repo, logger.Nop())

	tags, err := cls.Classify(ctx, "programmatic pipes everywhere")
	require.NoError(t, err)
	assert.Equal(t, []string{"adtech"}, tags)

	// New category is invisible until the cache is invalidated
	require.NoError(t, repo.SaveCategory(ctx, &models.TagCategory{
		Name:     "measurement",
		Keywords: models.StringSlice{"attribution"},
		Enabled:  true,
	}))

	tags, err = cls.Classify(ctx, "attribution models and programmatic pipes")
	require.NoError(t, err)
	assert.Equal(t, []string{"adtech"}, tags)

	cls.Invalidate()

	tags, err = cls.Classify(ctx, "attribution models and programmatic pipes")
	require.NoError(t, err)
	assert.Equal(t, []string{"adtech", "measurement"}, tags)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "publicite", Fold("Publicité"))
	assert.Equal(t, "creme brulee", Fold("Crème Brûlée"))
}
