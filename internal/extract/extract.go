// Package extract turns candidate wine-list lines into structured
// extractions, via Claude or a regex fallback.
package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// Sentinel errors forming the extraction taxonomy. ErrTimeout and
// ErrFailed tell the pipeline to fall back to the cheap extractor;
// neither ever aborts a run.
var (
	// ErrTimeout indicates the extraction call exceeded its hard deadline.
	ErrTimeout = eris.New("extract: timeout")
	// ErrFailed indicates a transport or parse failure.
	ErrFailed = eris.New("extract: failed")
)

// Extractor produces a structured extraction from one candidate line.
//
// A (nil, nil) return is the valid negative outcome: the line is not a
// wine (section headers, prices-only rows). Wine lists are full of
// these, so it is not an error.
type Extractor interface {
	Extract(ctx context.Context, line model.CandidateLine) (*model.Extraction, error)
}
