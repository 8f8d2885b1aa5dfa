package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/cellar-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteUpsertInsertThenMerge(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.UpsertWine(ctx, &model.Extraction{
		Name: "Opus One", Vintage: "2018", Producer: "Opus",
		Confidence: 0.3, Source: model.SourceFallback,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := s.UpsertWine(ctx, &model.Extraction{
		Name: "opus one", Vintage: "2018", Producer: "OPUS",
		Region: "Napa Valley", Confidence: 0.9, Source: model.SourceClaude,
		Attributes: model.Attributes{
			"price": {Value: "$315", Confidence: 0.9, Source: model.SourceClaude},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Napa Valley", second.Region)
	assert.Equal(t, "$315", second.Attributes["price"].Value)

	n, err := s.CountWines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Merge survives a round-trip.
	got, err := s.GetWine(ctx, first.DedupKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Napa Valley", got.Region)
	assert.InDelta(t, 0.9, got.Attributes["name"].Confidence, 0.001)
}

func TestSQLiteLowConfidenceReingestDoesNotClobber(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.UpsertWine(ctx, &model.Extraction{
		Name: "Opus One", Vintage: "2018", Region: "Napa Valley",
		Confidence: 0.9, Source: model.SourceClaude,
	})
	require.NoError(t, err)

	rec, err := s.UpsertWine(ctx, &model.Extraction{
		Name: "Opus One", Vintage: "2018", Region: "California",
		Confidence: 0.3, Source: model.SourceFallback,
	})
	require.NoError(t, err)
	assert.Equal(t, "Napa Valley", rec.Region)
}

func TestSQLiteGetWineMissing(t *testing.T) {
	s := newTestSQLite(t)

	rec, err := s.GetWine(context.Background(), "no|such|key")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteListWinesSearchAndPagination(t *testing.T) {
	s := newTestSQLite(t)
	seedWines(t, s, 5)

	page, err := s.ListWines(context.Background(), ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Wines, 2)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)

	// Case-insensitive substring search.
	page, err = s.ListWines(context.Background(), ListFilter{Search: "wine 03"})
	require.NoError(t, err)
	require.Len(t, page.Wines, 1)
	assert.Equal(t, "Wine 03", page.Wines[0].Name)
}

func TestSQLiteEnrichmentFlow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec, err := s.UpsertWine(ctx, &model.Extraction{Name: "Barolo", Vintage: "2016", Confidence: 0.8, Source: model.SourceClaude})
	require.NoError(t, err)

	unverified, err := s.ListUnverified(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unverified, 1)

	profile := &model.Profile{TastingNotes: "Tar and roses.", Body: "Full", Confidence: "high"}
	require.NoError(t, s.ApplyProfile(ctx, rec.ID, profile, "claude"))

	unverified, err = s.ListUnverified(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unverified)

	got, err := s.GetWine(ctx, rec.DedupKey)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "Full", got.Profile.Body)

	assert.Error(t, s.ApplyProfile(ctx, "missing-id", profile, "claude"))
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete))
	require.NoError(t, s.UpdateRunStats(ctx, run.ID, &model.RunStats{Processed: 2, Errors: 1}))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 2, got.Stats.Processed)
	assert.Equal(t, 1, got.Stats.Errors)
}
