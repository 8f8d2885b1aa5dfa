package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/config"
	"github.com/cellarworks/cellar-cli/internal/model"
	"github.com/cellarworks/cellar-cli/internal/segment"
)

// Scheduler batches candidate lines through the pipeline, pacing the
// work by input volume so big uploads do not hammer the knowledge
// service. Cancellation is checked at item boundaries: a cancelled run
// stops promptly but never mid-write.
type Scheduler struct {
	pipeline   *Pipeline
	store      catalog.Store
	tiers      []config.BatchTier
	sampleSize int
	workers    int
}

// NewScheduler builds a scheduler from the ingest configuration.
func NewScheduler(pipeline *Pipeline, store catalog.Store, cfg config.IngestConfig) *Scheduler {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = config.DefaultTiers()
	}
	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = 20
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		pipeline:   pipeline,
		store:      store,
		tiers:      tiers,
		sampleSize: sampleSize,
		workers:    workers,
	}
}

// tierFor picks the first tier whose MinLines the input exceeds. Tiers
// are ordered largest first, with a MinLines of 0 as the catch-all.
func (s *Scheduler) tierFor(total int) config.BatchTier {
	for _, t := range s.tiers {
		if total > t.MinLines {
			return t
		}
	}
	return s.tiers[len(s.tiers)-1]
}

// Run processes all lines and records progress against the run row.
// Per-item failures are counted, not propagated; only cancellation or a
// run-row bookkeeping failure returns an error. The returned stats are
// valid even on error and reflect the work done so far.
func (s *Scheduler) Run(ctx context.Context, runID string, lines []model.CandidateLine) (*model.RunStats, error) {
	start := time.Now()
	stats := &model.RunStats{TotalLines: len(lines)}

	tier := s.tierFor(len(lines))
	zap.L().Info("ingestion run started",
		zap.String("run_id", runID),
		zap.Int("lines", len(lines)),
		zap.Int("batch_size", tier.BatchSize),
		zap.Int("item_delay_ms", tier.ItemDelayMS),
		zap.Int("batch_pause_ms", tier.BatchPauseMS),
		zap.Int("workers", s.workers))

	if err := s.store.UpdateRunStatus(ctx, runID, model.RunStatusExtracting); err != nil {
		return stats, err
	}

	itemDelay := time.Duration(tier.ItemDelayMS) * time.Millisecond
	batchPause := time.Duration(tier.BatchPauseMS) * time.Millisecond

	for batchStart := 0; batchStart < len(lines); batchStart += tier.BatchSize {
		end := batchStart + tier.BatchSize
		if end > len(lines) {
			end = len(lines)
		}
		batch := lines[batchStart:end]

		var err error
		if s.workers > 1 {
			err = s.processBatchParallel(ctx, batch, itemDelay, stats)
		} else {
			err = s.processBatch(ctx, batch, itemDelay, stats)
		}
		if err != nil {
			stats.Elapsed = time.Since(start)
			s.finishRun(runID, model.RunStatusFailed, stats)
			return stats, err
		}

		// Progress checkpoint after every batch.
		stats.Elapsed = time.Since(start)
		if err := s.store.UpdateRunStats(ctx, runID, stats); err != nil {
			zap.L().Warn("run stats checkpoint failed", zap.String("run_id", runID), zap.Error(err))
		}

		if end < len(lines) {
			if err := sleepCtx(ctx, batchPause); err != nil {
				stats.Elapsed = time.Since(start)
				s.finishRun(runID, model.RunStatusFailed, stats)
				return stats, err
			}
		}
	}

	if total, err := s.store.CountWines(ctx); err == nil {
		stats.DatabaseTotal = total
	} else {
		zap.L().Warn("count wines failed", zap.Error(err))
	}
	stats.Elapsed = time.Since(start)

	s.finishRun(runID, model.RunStatusComplete, stats)
	zap.L().Info("ingestion run complete",
		zap.String("run_id", runID),
		zap.Int("processed", stats.Processed),
		zap.Int("errors", stats.Errors),
		zap.Int("rejected", stats.Rejected),
		zap.Int("fallbacks", stats.Fallbacks),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (s *Scheduler) processBatch(ctx context.Context, batch []model.CandidateLine, itemDelay time.Duration, stats *model.RunStats) error {
	for i, line := range batch {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "ingest cancelled")
		}

		res := s.pipeline.ProcessLine(ctx, line)
		s.record(stats, res)

		if i < len(batch)-1 {
			if err := sleepCtx(ctx, itemDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) processBatchParallel(ctx context.Context, batch []model.CandidateLine, itemDelay time.Duration, stats *model.RunStats) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, line := range batch {
		if err := ctx.Err(); err != nil {
			break
		}
		line := line
		g.Go(func() error {
			res := s.pipeline.ProcessLine(gctx, line)
			mu.Lock()
			s.record(stats, res)
			mu.Unlock()
			// Each worker paces itself so aggregate throughput stays
			// near the sequential budget divided by worker count.
			return sleepCtx(gctx, itemDelay)
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "ingest cancelled")
	}
	return eris.Wrap(ctx.Err(), "ingest cancelled")
}

func (s *Scheduler) record(stats *model.RunStats, res LineResult) {
	switch res.State {
	case model.LineStored:
		stats.Processed++
		if res.Fallback {
			stats.Fallbacks++
		}
		if len(stats.Sample) < s.sampleSize && res.Record != nil {
			stats.Sample = append(stats.Sample, *res.Record)
		}
	case model.LineRejected:
		stats.Rejected++
	case model.LineFailed:
		stats.Errors++
		zap.L().Warn("line failed",
			zap.Int("line", res.Line.Index),
			zap.Error(res.Err))
	}
}

// finishRun records terminal state with a fresh context so a cancelled
// run still gets its failed status persisted.
func (s *Scheduler) finishRun(runID string, status model.RunStatus, stats *model.RunStats) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateRunStats(ctx, runID, stats); err != nil {
		zap.L().Warn("final run stats update failed", zap.String("run_id", runID), zap.Error(err))
	}
	if err := s.store.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("final run status update failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Service ties segmentation, run bookkeeping and scheduling together
// for callers that start from raw text.
type Service struct {
	segmenter *segment.Segmenter
	scheduler *Scheduler
	store     catalog.Store
}

// NewService builds the full ingestion entry point.
func NewService(segmenter *segment.Segmenter, scheduler *Scheduler, store catalog.Store) *Service {
	return &Service{segmenter: segmenter, scheduler: scheduler, store: store}
}

// IngestText segments raw text and runs the scheduler over the result.
// The run record is returned even when the run itself fails so callers
// can report the run ID.
func (s *Service) IngestText(ctx context.Context, raw string) (*model.Run, *model.RunStats, error) {
	run, err := s.store.CreateRun(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "create run")
	}

	if err := s.store.UpdateRunStatus(ctx, run.ID, model.RunStatusSegmenting); err != nil {
		return run, nil, err
	}
	lines := s.segmenter.Split(raw)
	zap.L().Info("segmented input", zap.String("run_id", run.ID), zap.Int("lines", len(lines)))

	stats, err := s.scheduler.Run(ctx, run.ID, lines)
	return run, stats, err
}
