package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/extract"
	"github.com/cellarworks/cellar-cli/internal/model"
)

// Pipeline drives one candidate line through extraction and storage.
// The primary extractor is tried first; on timeout or failure the line
// falls back to the cheap extractor so a degraded service never stalls
// a run. A line the primary explicitly identifies as not a wine is
// rejected without falling back.
type Pipeline struct {
	primary  extract.Extractor
	fallback extract.Extractor
	store    catalog.Store
}

// NewPipeline wires the extractors to the catalog store.
func NewPipeline(primary, fallback extract.Extractor, store catalog.Store) *Pipeline {
	return &Pipeline{primary: primary, fallback: fallback, store: store}
}

// LineResult is the terminal outcome of one line.
type LineResult struct {
	Line     model.CandidateLine
	State    model.LineState
	Fallback bool
	Record   *model.WineRecord
	Err      error
}

// ProcessLine runs the line state machine. Errors are captured in the
// result rather than returned so one bad line never aborts a batch.
func (p *Pipeline) ProcessLine(ctx context.Context, line model.CandidateLine) LineResult {
	res := LineResult{Line: line, State: model.LinePending}

	ex, err := p.primary.Extract(ctx, line)
	switch {
	case err == nil && ex == nil:
		// The service answered and the line is not a wine.
		res.State = model.LineRejected
		return res
	case err == nil:
		res.State = model.LineExtractedViaService
	case eris.Is(err, extract.ErrTimeout) || eris.Is(err, extract.ErrFailed):
		zap.L().Debug("primary extraction degraded, using fallback",
			zap.Int("line", line.Index),
			zap.Error(err))
		res.Fallback = true
		ex, err = p.fallback.Extract(ctx, line)
		if err != nil {
			res.State = model.LineFailed
			res.Err = eris.Wrapf(err, "fallback extraction for line %d", line.Index)
			return res
		}
		res.State = model.LineExtractedViaFallback
	default:
		res.State = model.LineFailed
		res.Err = eris.Wrapf(err, "extraction for line %d", line.Index)
		return res
	}

	rec, err := p.store.UpsertWine(ctx, ex)
	if err != nil {
		res.State = model.LineFailed
		res.Err = eris.Wrapf(err, "store line %d", line.Index)
		return res
	}

	res.State = model.LineStored
	res.Record = rec
	return res
}
