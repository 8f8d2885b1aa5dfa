package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// FallbackConfidence is attached to cheap extractions so any real
// service extraction (default 0.8) can later overwrite them in a merge.
const FallbackConfidence = 0.3

// vintageRe matches a four-digit year in the 1900–2099 range.
var vintageRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// vintageCutRe additionally swallows the punctuation hugging the year so
// removing "2018," leaves no stray comma behind.
var vintageCutRe = regexp.MustCompile(`[\s\-,.;:()\[\]]*\b(19|20)\d{2}\b[\s\-,.;:()\[\]]*`)

// CheapExtractor pulls a name and vintage from a line with a regex.
// It never fails and never touches the network; used as a pre-pass hint
// and as the fallback when the knowledge service is unavailable.
type CheapExtractor struct{}

// NewCheapExtractor returns the regex-based fallback extractor.
func NewCheapExtractor() *CheapExtractor {
	return &CheapExtractor{}
}

// Extract always returns a non-nil extraction with at least a name.
func (e *CheapExtractor) Extract(_ context.Context, line model.CandidateLine) (*model.Extraction, error) {
	text := strings.TrimSpace(line.Text)

	ex := &model.Extraction{
		Name:       text,
		Confidence: FallbackConfidence,
		Source:     model.SourceFallback,
	}

	vintage := vintageRe.FindString(text)
	if vintage == "" {
		return ex, nil
	}

	ex.Vintage = vintage

	name := vintageCutRe.ReplaceAllString(text, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " -–—,.;:()[]")
	if name != "" {
		ex.Name = name
	}

	return ex, nil
}
