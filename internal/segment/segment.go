// Package segment splits raw wine-list text into candidate entry lines.
package segment

import (
	"strings"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// DefaultMinLength is the shortest fragment treated as a possible wine
// entry; anything shorter is noise (bullets, stray punctuation).
const DefaultMinLength = 4

// Segmenter splits a raw text blob into ordered candidate lines.
type Segmenter struct {
	minLength int
}

// New creates a Segmenter. minLength <= 0 falls back to DefaultMinLength.
func New(minLength int) *Segmenter {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Segmenter{minLength: minLength}
}

// Split returns the trimmed, non-trivial lines of raw in order. The
// returned indexes refer to the position within the kept sequence, not
// the original line numbers.
func (s *Segmenter) Split(raw string) []model.CandidateLine {
	var out []model.CandidateLine
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if len(line) < s.minLength {
			continue
		}
		out = append(out, model.CandidateLine{Text: line, Index: len(out)})
	}
	return out
}
