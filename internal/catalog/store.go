package catalog

import (
	"context"
	"strings"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// DefaultPageSize is used when a list request omits or zeroes pageSize.
const DefaultPageSize = 20

// ListFilter specifies pagination and search criteria for ListWines.
type ListFilter struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search,omitempty"`
}

// Page is one page of catalog results plus pagination metadata.
type Page struct {
	Wines       []model.WineRecord `json:"wines"`
	Total       int                `json:"total"`
	TotalPages  int                `json:"total_pages"`
	CurrentPage int                `json:"current_page"`
	PageSize    int                `json:"page_size"`
}

// Store is the persistence interface for the wine catalog. Upserts must
// be atomic per dedup key: concurrent writers to the same key get a
// confidence-respecting merge, never lost updates.
type Store interface {
	// UpsertWine inserts a record for the extraction's dedup key, or
	// merges into the existing one. Returns the resulting record.
	UpsertWine(ctx context.Context, ex *model.Extraction) (*model.WineRecord, error)

	// GetWine fetches one record by dedup key; (nil, nil) when absent.
	GetWine(ctx context.Context, dedupKey string) (*model.WineRecord, error)

	// ListWines returns a page of records matching the filter, search
	// OR-ed case-insensitively over name, vintage, producer, region,
	// country, and varietals. Out-of-range pages clamp.
	ListWines(ctx context.Context, filter ListFilter) (*Page, error)

	// ListUnverified returns up to limit records awaiting enrichment.
	ListUnverified(ctx context.Context, limit int) ([]model.WineRecord, error)

	// ApplyProfile writes enrichment output and marks the record verified.
	ApplyProfile(ctx context.Context, id string, profile *model.Profile, source string) error

	// CountWines reports the catalog size.
	CountWines(ctx context.Context) (int, error)

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunStats(ctx context.Context, runID string, stats *model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// searchColumns are the free-text searchable record fields, in the
// order they appear in SQL queries.
var searchColumns = []string{"name", "vintage", "producer", "region", "country", "varietals"}

// clampPage normalizes pagination inputs against a known total: page
// and pageSize get defaults, and an out-of-range page clamps to the
// valid range instead of erroring. Returns the effective page, offset,
// and total page count.
func clampPage(page, pageSize, total int) (int, int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, (page - 1) * pageSize, totalPages
}

// matchesSearch is the in-memory counterpart of the SQL substring
// search used by the database stores.
func matchesSearch(rec *model.WineRecord, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, hay := range []string{rec.Name, rec.Vintage, rec.Producer, rec.Region, rec.Country, rec.Varietals} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
