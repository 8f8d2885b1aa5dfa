package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS wines (
	id              TEXT PRIMARY KEY,
	dedup_key       TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	vintage         TEXT NOT NULL DEFAULT '',
	producer        TEXT NOT NULL DEFAULT '',
	region          TEXT NOT NULL DEFAULT '',
	country         TEXT NOT NULL DEFAULT '',
	varietals       TEXT NOT NULL DEFAULT '',
	attributes      TEXT NOT NULL DEFAULT '{}',
	verified        INTEGER NOT NULL DEFAULT 0,
	verified_source TEXT NOT NULL DEFAULT '',
	profile         TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wines_verified ON wines(verified);
CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteWineColumns = `id, dedup_key, name, vintage, producer, region, country, varietals, attributes, verified, verified_source, profile, created_at, updated_at`

func (s *SQLiteStore) UpsertWine(ctx context.Context, ex *model.Extraction) (*model.WineRecord, error) {
	key := DedupKey(ex.Name, ex.Vintage, ex.Producer)

	// The merge must see a consistent row, so select and write inside
	// one transaction; SQLite serializes the writers.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+sqliteWineColumns+` FROM wines WHERE dedup_key = ?`, key)
	rec, err := scanSQLiteWine(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: select for upsert")
	}

	now := time.Now().UTC()
	if rec == nil {
		rec = recordFromExtraction(uuid.New().String(), ex)
		rec.CreatedAt = now
		rec.UpdatedAt = now

		attrsJSON, marshalErr := json.Marshal(rec.Attributes)
		if marshalErr != nil {
			return nil, eris.Wrap(marshalErr, "sqlite: marshal attributes")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wines (`+sqliteWineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.DedupKey, rec.Name, rec.Vintage, rec.Producer, rec.Region, rec.Country,
			rec.Varietals, string(attrsJSON), boolToInt(rec.Verified), rec.VerifiedSource, nil,
			rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert wine")
		}
	} else if mergeExtraction(rec, ex) {
		rec.UpdatedAt = now

		attrsJSON, marshalErr := json.Marshal(rec.Attributes)
		if marshalErr != nil {
			return nil, eris.Wrap(marshalErr, "sqlite: marshal attributes")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE wines SET name = ?, vintage = ?, producer = ?, region = ?, country = ?, varietals = ?, attributes = ?, updated_at = ? WHERE dedup_key = ?`,
			rec.Name, rec.Vintage, rec.Producer, rec.Region, rec.Country, rec.Varietals,
			string(attrsJSON), rec.UpdatedAt, key,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: update wine")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit upsert")
	}
	return rec, nil
}

func (s *SQLiteStore) GetWine(ctx context.Context, dedupKey string) (*model.WineRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteWineColumns+` FROM wines WHERE dedup_key = ?`, dedupKey)
	rec, err := scanSQLiteWine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get wine")
	}
	return rec, nil
}

func (s *SQLiteStore) ListWines(ctx context.Context, filter ListFilter) (*Page, error) {
	where := ""
	var args []any
	if filter.Search != "" {
		var clauses []string
		pattern := "%" + filter.Search + "%"
		for _, col := range searchColumns {
			clauses = append(clauses, fmt.Sprintf("%s LIKE ? COLLATE NOCASE", col))
			args = append(args, pattern)
		}
		where = " WHERE " + strings.Join(clauses, " OR ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wines`+where, args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "sqlite: count wines")
	}

	page, offset, totalPages := clampPage(filter.Page, filter.PageSize, total)
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteWineColumns+` FROM wines`+where+` ORDER BY name, vintage LIMIT ? OFFSET ?`,
		append(args, pageSize, offset)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wines")
	}
	defer rows.Close()

	wines, err := collectSQLiteWines(rows)
	if err != nil {
		return nil, err
	}

	return &Page{
		Wines:       wines,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *SQLiteStore) ListUnverified(ctx context.Context, limit int) ([]model.WineRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteWineColumns+` FROM wines WHERE verified = 0 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unverified")
	}
	defer rows.Close()
	return collectSQLiteWines(rows)
}

func (s *SQLiteStore) ApplyProfile(ctx context.Context, id string, profile *model.Profile, source string) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET profile = ?, verified = 1, verified_source = ?, updated_at = ? WHERE id = ?`,
		string(profileJSON), source, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: apply profile %s", id)
	}
	return checkRowsAffected(res, "wine", id)
}

func (s *SQLiteStore) CountWines(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wines`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count wines")
	}
	return n, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusQueued, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunStats(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run stats %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var (
		run       model.Run
		status    string
		statsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, stats, created_at, updated_at FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &status, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	run.Status = model.RunStatus(status)
	if statsJSON.Valid && statsJSON.String != "" {
		var stats model.RunStats
		if err := json.Unmarshal([]byte(statsJSON.String), &stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
		run.Stats = &stats
	}
	return &run, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteWine(row scanner) (*model.WineRecord, error) {
	var (
		rec         model.WineRecord
		attrsJSON   string
		verified    int
		profileJSON sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.DedupKey, &rec.Name, &rec.Vintage, &rec.Producer, &rec.Region,
		&rec.Country, &rec.Varietals, &attrsJSON, &verified, &rec.VerifiedSource, &profileJSON,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Verified = verified != 0
	if attrsJSON != "" {
		if err := json.Unmarshal([]byte(attrsJSON), &rec.Attributes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
		}
	}
	if profileJSON.Valid && profileJSON.String != "" {
		var p model.Profile
		if err := json.Unmarshal([]byte(profileJSON.String), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
		rec.Profile = &p
	}
	return &rec, nil
}

func collectSQLiteWines(rows *sql.Rows) ([]model.WineRecord, error) {
	var out []model.WineRecord
	for rows.Next() {
		rec, err := scanSQLiteWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan wine")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate wines")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
