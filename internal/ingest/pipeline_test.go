package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/extract"
	"github.com/cellarworks/cellar-cli/internal/model"
)

// stubExtractor scripts per-line behavior for pipeline tests.
type stubExtractor struct {
	fn func(line model.CandidateLine) (*model.Extraction, error)
}

func (s *stubExtractor) Extract(_ context.Context, line model.CandidateLine) (*model.Extraction, error) {
	return s.fn(line)
}

// serviceStub recognizes lines containing a wine name and rejects
// heading-like lines, mimicking the knowledge service.
func serviceStub() *stubExtractor {
	return &stubExtractor{fn: func(line model.CandidateLine) (*model.Extraction, error) {
		if strings.ToUpper(line.Text) == line.Text {
			return nil, nil // section heading, not a wine
		}
		return &model.Extraction{
			Name:       line.Text,
			Confidence: 0.9,
			Source:     model.SourceClaude,
		}, nil
	}}
}

func timeoutStub() *stubExtractor {
	return &stubExtractor{fn: func(model.CandidateLine) (*model.Extraction, error) {
		return nil, extract.ErrTimeout
	}}
}

func TestProcessLineStoresServiceExtraction(t *testing.T) {
	store := catalog.NewMemory()
	p := NewPipeline(serviceStub(), extract.NewCheapExtractor(), store)

	res := p.ProcessLine(context.Background(), model.CandidateLine{Text: "Opus One 2018 Napa Valley", Index: 0})

	assert.Equal(t, model.LineStored, res.State)
	assert.False(t, res.Fallback)
	require.NotNil(t, res.Record)
	assert.Equal(t, "Opus One 2018 Napa Valley", res.Record.Name)

	n, err := store.CountWines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessLineRejectsNonWine(t *testing.T) {
	store := catalog.NewMemory()
	p := NewPipeline(serviceStub(), extract.NewCheapExtractor(), store)

	res := p.ProcessLine(context.Background(), model.CandidateLine{Text: "RED WINES", Index: 0})

	assert.Equal(t, model.LineRejected, res.State)
	assert.Nil(t, res.Record)

	n, err := store.CountWines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessLineFallsBackOnTimeout(t *testing.T) {
	store := catalog.NewMemory()
	p := NewPipeline(timeoutStub(), extract.NewCheapExtractor(), store)

	res := p.ProcessLine(context.Background(), model.CandidateLine{Text: "Château Margaux 2015", Index: 3})

	assert.Equal(t, model.LineStored, res.State)
	assert.True(t, res.Fallback)
	require.NotNil(t, res.Record)
	assert.Equal(t, "Château Margaux", res.Record.Name)
	assert.Equal(t, "2015", res.Record.Vintage)
}

func TestProcessLineFallsBackOnFailure(t *testing.T) {
	store := catalog.NewMemory()
	failing := &stubExtractor{fn: func(model.CandidateLine) (*model.Extraction, error) {
		return nil, eris.Wrap(extract.ErrFailed, "garbled response")
	}}
	p := NewPipeline(failing, extract.NewCheapExtractor(), store)

	res := p.ProcessLine(context.Background(), model.CandidateLine{Text: "Barolo Riserva 2016", Index: 0})

	assert.Equal(t, model.LineStored, res.State)
	assert.True(t, res.Fallback)
}

type failingUpsertStore struct {
	catalog.Store
}

func (f *failingUpsertStore) UpsertWine(context.Context, *model.Extraction) (*model.WineRecord, error) {
	return nil, eris.New("disk full")
}

func TestProcessLineReportsStoreFailure(t *testing.T) {
	store := &failingUpsertStore{Store: catalog.NewMemory()}
	p := NewPipeline(serviceStub(), extract.NewCheapExtractor(), store)

	res := p.ProcessLine(context.Background(), model.CandidateLine{Text: "Opus One 2018", Index: 0})

	assert.Equal(t, model.LineFailed, res.State)
	assert.Error(t, res.Err)
}
