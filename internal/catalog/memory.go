package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// MemoryStore is an in-memory Store used by tests and one-off dry runs.
// The mutex makes per-key merges atomic, mirroring the transactional
// guarantee of the database stores.
type MemoryStore struct {
	mu    sync.Mutex
	wines map[string]*model.WineRecord // keyed by dedup key
	runs  map[string]*model.Run
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		wines: make(map[string]*model.WineRecord),
		runs:  make(map[string]*model.Run),
	}
}

func (s *MemoryStore) UpsertWine(_ context.Context, ex *model.Extraction) (*model.WineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := DedupKey(ex.Name, ex.Vintage, ex.Producer)
	now := time.Now().UTC()

	if rec, ok := s.wines[key]; ok {
		if mergeExtraction(rec, ex) {
			rec.UpdatedAt = now
		}
		out := *rec
		return &out, nil
	}

	rec := recordFromExtraction(uuid.New().String(), ex)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.wines[key] = rec
	out := *rec
	return &out, nil
}

func (s *MemoryStore) GetWine(_ context.Context, dedupKey string) (*model.WineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.wines[dedupKey]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) ListWines(_ context.Context, filter ListFilter) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.WineRecord
	for _, rec := range s.wines {
		if matchesSearch(rec, filter.Search) {
			matched = append(matched, *rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	page, offset, totalPages := clampPage(filter.Page, filter.PageSize, len(matched))
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	end := offset + pageSize
	if offset > len(matched) {
		offset = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	return &Page{
		Wines:       matched[offset:end],
		Total:       len(matched),
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *MemoryStore) ListUnverified(_ context.Context, limit int) ([]model.WineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.WineRecord
	for _, rec := range s.wines {
		if !rec.Verified {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ApplyProfile(_ context.Context, id string, profile *model.Profile, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.wines {
		if rec.ID == id {
			rec.Profile = profile
			rec.Verified = true
			rec.VerifiedSource = source
			rec.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return eris.Errorf("memory: wine %s not found", id)
}

func (s *MemoryStore) CountWines(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wines), nil
}

func (s *MemoryStore) CreateRun(_ context.Context) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.runs[run.ID] = run
	out := *run
	return &out, nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("memory: run %s not found", runID)
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateRunStats(_ context.Context, runID string, stats *model.RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("memory: run %s not found", runID)
	}
	run.Stats = stats
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, eris.Errorf("memory: run %s not found", runID)
	}
	out := *run
	return &out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
