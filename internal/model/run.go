package model

import "time"

// RunStatus represents the current state of an ingestion run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusSegmenting RunStatus = "segmenting"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// LineState tracks one candidate line through the ingestion state machine.
type LineState string

const (
	LinePending              LineState = "pending"
	LineExtractedViaService  LineState = "extracted_via_service"
	LineExtractedViaFallback LineState = "extracted_via_fallback"
	LineRejected             LineState = "rejected"
	LineStored               LineState = "stored"
	LineFailed               LineState = "failed"
)

// CandidateLine is one unit of raw text considered as a possible wine
// entry. Ephemeral: never persisted.
type CandidateLine struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// RunStats aggregates the outcome of an ingestion or enrichment run.
type RunStats struct {
	TotalLines    int           `json:"total_lines"`
	Processed     int           `json:"processed"`
	Errors        int           `json:"errors"`
	Rejected      int           `json:"rejected"`
	Fallbacks     int           `json:"fallbacks"`
	DatabaseTotal int           `json:"database_total"`
	Elapsed       time.Duration `json:"elapsed"`
	// Sample holds the first few stored records for UI preview.
	Sample []WineRecord `json:"sample,omitempty"`
}

// Run represents a single ingestion run over one raw wine-list upload.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Stats     *RunStats `json:"stats,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
