package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cellarworks/cellar-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it for unit tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS wines (
	id              TEXT PRIMARY KEY,
	dedup_key       TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	vintage         TEXT NOT NULL DEFAULT '',
	producer        TEXT NOT NULL DEFAULT '',
	region          TEXT NOT NULL DEFAULT '',
	country         TEXT NOT NULL DEFAULT '',
	varietals       TEXT NOT NULL DEFAULT '',
	attributes      JSONB NOT NULL DEFAULT '{}',
	verified        BOOLEAN NOT NULL DEFAULT FALSE,
	verified_source TEXT NOT NULL DEFAULT '',
	profile         JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wines_verified ON wines(verified);
CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgWineColumns = `id, dedup_key, name, vintage, producer, region, country, varietals, attributes, verified, verified_source, profile, created_at, updated_at`

// UpsertWine merges under a row lock so concurrent writers to the same
// dedup key serialize instead of losing updates.
func (s *PostgresStore) UpsertWine(ctx context.Context, ex *model.Extraction) (*model.WineRecord, error) {
	key := DedupKey(ex.Name, ex.Vintage, ex.Producer)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+pgWineColumns+` FROM wines WHERE dedup_key = $1 FOR UPDATE`, key)
	rec, err := scanPGWine(row)
	if err != nil && !eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: select for upsert")
	}

	now := time.Now().UTC()
	if rec == nil {
		rec = recordFromExtraction(uuid.New().String(), ex)
		rec.CreatedAt = now
		rec.UpdatedAt = now

		attrsJSON, marshalErr := json.Marshal(rec.Attributes)
		if marshalErr != nil {
			return nil, eris.Wrap(marshalErr, "postgres: marshal attributes")
		}
		// A concurrent first-insert can still race on the unique key;
		// ON CONFLICT DO NOTHING plus the retry-read below covers it.
		tag, execErr := tx.Exec(ctx,
			`INSERT INTO wines (`+pgWineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (dedup_key) DO NOTHING`,
			rec.ID, rec.DedupKey, rec.Name, rec.Vintage, rec.Producer, rec.Region, rec.Country,
			rec.Varietals, attrsJSON, rec.Verified, rec.VerifiedSource, nil, rec.CreatedAt, rec.UpdatedAt,
		)
		if execErr != nil {
			return nil, eris.Wrap(execErr, "postgres: insert wine")
		}
		if tag.RowsAffected() == 0 {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, eris.Wrap(commitErr, "postgres: commit upsert")
			}
			return s.UpsertWine(ctx, ex)
		}
	} else if mergeExtraction(rec, ex) {
		rec.UpdatedAt = now

		attrsJSON, marshalErr := json.Marshal(rec.Attributes)
		if marshalErr != nil {
			return nil, eris.Wrap(marshalErr, "postgres: marshal attributes")
		}
		_, err = tx.Exec(ctx,
			`UPDATE wines SET name = $1, vintage = $2, producer = $3, region = $4, country = $5, varietals = $6, attributes = $7, updated_at = $8 WHERE dedup_key = $9`,
			rec.Name, rec.Vintage, rec.Producer, rec.Region, rec.Country, rec.Varietals,
			attrsJSON, rec.UpdatedAt, key,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: update wine")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit upsert")
	}
	return rec, nil
}

func (s *PostgresStore) GetWine(ctx context.Context, dedupKey string) (*model.WineRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgWineColumns+` FROM wines WHERE dedup_key = $1`, dedupKey)
	rec, err := scanPGWine(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get wine")
	}
	return rec, nil
}

func (s *PostgresStore) ListWines(ctx context.Context, filter ListFilter) (*Page, error) {
	where := ""
	var args []any
	if filter.Search != "" {
		var clauses []string
		pattern := "%" + filter.Search + "%"
		for i, col := range searchColumns {
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", col, i+1))
			args = append(args, pattern)
		}
		where = " WHERE " + strings.Join(clauses, " OR ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wines`+where, args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count wines")
	}

	page, offset, totalPages := clampPage(filter.Page, filter.PageSize, total)
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT `+pgWineColumns+` FROM wines%s ORDER BY name, vintage LIMIT $%d OFFSET $%d`,
			where, len(args)+1, len(args)+2),
		append(args, pageSize, offset)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wines")
	}
	defer rows.Close()

	wines, err := collectPGWines(rows)
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

func (s *PostgresStore) ListUnverified(ctx context.Context, limit int) ([]model.WineRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgWineColumns+` FROM wines WHERE verified = FALSE ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unverified")
	}
	defer rows.Close()
	return collectPGWines(rows)
}

func (s *PostgresStore) ApplyProfile(ctx context.Context, id string, profile *model.Profile, source string) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET profile = $1, verified = TRUE, verified_source = $2, updated_at = $3 WHERE id = $4`,
		profileJSON, source, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: apply profile %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: wine %s not found", id)
	}
	return nil
}

func (s *PostgresStore) CountWines(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wines`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count wines")
	}
	return n, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusQueued, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunStats(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, updated_at = $2 WHERE id = $3`,
		statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run stats %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var (
		run       model.Run
		status    string
		statsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, stats, created_at, updated_at FROM runs WHERE id = $1`, runID,
	).Scan(&run.ID, &status, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	run.Status = model.RunStatus(status)
	if len(statsJSON) > 0 {
		var stats model.RunStats
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
		run.Stats = &stats
	}
	return &run, nil
}

func scanPGWine(row pgx.Row) (*model.WineRecord, error) {
	var (
		rec         model.WineRecord
		attrsJSON   []byte
		profileJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.DedupKey, &rec.Name, &rec.Vintage, &rec.Producer, &rec.Region,
		&rec.Country, &rec.Varietals, &attrsJSON, &rec.Verified, &rec.VerifiedSource, &profileJSON,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &rec.Attributes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attributes")
		}
	}
	if len(profileJSON) > 0 {
		var p model.Profile
		if err := json.Unmarshal(profileJSON, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile")
		}
		rec.Profile = &p
	}
	return &rec, nil
}

func collectPGWines(rows pgx.Rows) ([]model.WineRecord, error) {
	var out []model.WineRecord
	for rows.Next() {
		rec, err := scanPGWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan wine")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate wines")
}
