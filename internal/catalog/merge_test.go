package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/cellar-cli/internal/model"
)

func TestMergeFillsEmptyFields(t *testing.T) {
	rec := recordFromExtraction("id-1", &model.Extraction{
		Name:       "Opus One",
		Vintage:    "2018",
		Confidence: 0.3,
		Source:     model.SourceFallback,
	})

	changed := mergeExtraction(rec, &model.Extraction{
		Name:       "Opus One",
		Vintage:    "2018",
		Producer:   "Opus One Winery",
		Region:     "Napa Valley",
		Confidence: 0.9,
		Source:     model.SourceClaude,
	})

	assert.True(t, changed)
	assert.Equal(t, "Opus One Winery", rec.Producer)
	assert.Equal(t, "Napa Valley", rec.Region)
	assert.Equal(t, model.SourceClaude, rec.Attributes["producer"].Source)
}

func TestMergeHigherConfidenceWins(t *testing.T) {
	rec := recordFromExtraction("id-1", &model.Extraction{
		Name:       "Opus 1",
		Vintage:    "2018",
		Confidence: 0.3,
		Source:     model.SourceFallback,
	})

	mergeExtraction(rec, &model.Extraction{
		Name:       "Opus One",
		Vintage:    "2018",
		Confidence: 0.9,
		Source:     model.SourceClaude,
	})

	assert.Equal(t, "Opus One", rec.Name)
	assert.InDelta(t, 0.9, rec.Attributes["name"].Confidence, 0.001)
}

func TestMergeLowerConfidenceNeverDowngrades(t *testing.T) {
	rec := recordFromExtraction("id-1", &model.Extraction{
		Name:       "Opus One",
		Region:     "Napa Valley",
		Confidence: 0.9,
		Source:     model.SourceClaude,
		Attributes: model.Attributes{
			"price": {Value: "$315", Confidence: 0.9, Source: model.SourceClaude},
		},
	})

	changed := mergeExtraction(rec, &model.Extraction{
		Name:       "Opus One Napa",
		Region:     "California",
		Confidence: 0.3,
		Source:     model.SourceFallback,
		Attributes: model.Attributes{
			"price": {Value: "$99", Confidence: 0.3, Source: model.SourceFallback},
		},
	})

	assert.False(t, changed)
	assert.Equal(t, "Opus One", rec.Name)
	assert.Equal(t, "Napa Valley", rec.Region)
	assert.Equal(t, "$315", rec.Attributes["price"].Value)
}

func TestMergeBlanksNeverClobber(t *testing.T) {
	rec := recordFromExtraction("id-1", &model.Extraction{
		Name:       "Opus One",
		Producer:   "Opus One Winery",
		Confidence: 0.5,
		Source:     model.SourceClaude,
	})

	changed := mergeExtraction(rec, &model.Extraction{
		Name:       "Opus One",
		Producer:   "", // high confidence but empty
		Confidence: 0.95,
		Source:     model.SourceClaude,
	})

	assert.Equal(t, "Opus One Winery", rec.Producer)
	_ = changed
}

func TestMergeEqualConfidenceRefreshes(t *testing.T) {
	rec := recordFromExtraction("id-1", &model.Extraction{
		Name:       "Opus One",
		Region:     "Napa",
		Confidence: 0.8,
		Source:     model.SourceClaude,
	})

	changed := mergeExtraction(rec, &model.Extraction{
		Name:       "Opus One",
		Region:     "Napa Valley",
		Confidence: 0.8,
		Source:     model.SourceClaude,
	})

	require.True(t, changed)
	assert.Equal(t, "Napa Valley", rec.Region)
}
