package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/config"
)

// Stats summarizes one enrichment sweep.
type Stats struct {
	Candidates int           `json:"candidates"`
	Enriched   int           `json:"enriched"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Scheduler sweeps unverified wines through profile generation. Each
// wine is handled in isolation; a bad generation or a store error on
// one never stops the sweep. Rejected profiles leave the wine
// unverified so a later sweep can retry it.
type Scheduler struct {
	gen            Generator
	store          catalog.Store
	batchLimit     int
	itemDelay      time.Duration
	minNotesLength int
}

// NewScheduler builds an enrichment scheduler from configuration.
func NewScheduler(gen Generator, store catalog.Store, cfg config.EnrichConfig) *Scheduler {
	batchLimit := cfg.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 50
	}
	minNotes := cfg.MinNotesLength
	if minNotes <= 0 {
		minNotes = MinNotesLength
	}
	return &Scheduler{
		gen:            gen,
		store:          store,
		batchLimit:     batchLimit,
		itemDelay:      time.Duration(cfg.ItemDelayMS) * time.Millisecond,
		minNotesLength: minNotes,
	}
}

// Run enriches up to the batch limit of unverified wines. Cancellation
// is honored between items.
func (s *Scheduler) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	wines, err := s.store.ListUnverified(ctx, s.batchLimit)
	if err != nil {
		return stats, eris.Wrap(err, "enrich: list candidates")
	}
	stats.Candidates = len(wines)

	zap.L().Info("enrichment sweep started", zap.Int("candidates", len(wines)))

	for i := range wines {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, eris.Wrap(err, "enrich cancelled")
		}

		rec := &wines[i]
		profile, err := s.gen.Generate(ctx, rec)
		if err != nil {
			stats.Errors++
			zap.L().Warn("profile generation failed",
				zap.String("wine_id", rec.ID),
				zap.String("name", rec.Name),
				zap.Error(err))
		} else if !Acceptable(profile, s.minNotesLength) {
			stats.Skipped++
			zap.L().Debug("profile rejected by quality gate",
				zap.String("wine_id", rec.ID),
				zap.Int("notes_len", len(profile.TastingNotes)),
				zap.String("confidence", profile.Confidence))
		} else if err := s.store.ApplyProfile(ctx, rec.ID, profile, "claude"); err != nil {
			stats.Errors++
			zap.L().Warn("profile store failed", zap.String("wine_id", rec.ID), zap.Error(err))
		} else {
			stats.Enriched++
		}

		if i < len(wines)-1 && s.itemDelay > 0 {
			t := time.NewTimer(s.itemDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				stats.Elapsed = time.Since(start)
				return stats, eris.Wrap(ctx.Err(), "enrich cancelled")
			case <-t.C:
			}
		}
	}

	stats.Elapsed = time.Since(start)
	zap.L().Info("enrichment sweep complete",
		zap.Int("enriched", stats.Enriched),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}
