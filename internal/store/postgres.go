package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/internal/db"
	"github.com/meridian-legal/evidence-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. These
// are the per-cell hot paths; a large run touches them thousands of times.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, version_ids, field_keys, profile, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"complete_run":      `UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
	"get_run":           `SELECT id, version_ids, field_keys, profile, mode, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
	"complete_cell":     `UPDATE cells SET state = $1, result = $2 WHERE id = $3`,
	"get_cell":          `SELECT id, run_id, version_id, field_key, state, result, created_at FROM cells WHERE id = $1`,
	"list_cells":        `SELECT id, run_id, version_id, field_key, state, result, created_at FROM cells WHERE run_id = $1 ORDER BY version_id, field_key`,
	"get_embeddings":    `SELECT block_id, vector FROM embedding_cache WHERE version_id = $1 AND model = $2 AND block_id = ANY($3)`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	version_ids JSONB NOT NULL,
	field_keys  JSONB NOT NULL,
	profile     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	summary     JSONB,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cells (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	version_id TEXT NOT NULL,
	field_key  TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'pending',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	version_id TEXT NOT NULL,
	block_id   TEXT NOT NULL,
	model      TEXT NOT NULL,
	vector     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (version_id, block_id, model)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_cells_run_id ON cells(run_id);
CREATE INDEX IF NOT EXISTS idx_cells_state ON cells(state);
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

func (s *PostgresStore) CreateRun(ctx context.Context, versionIDs, fieldKeys []string, profile model.QualityProfile, mode model.ExtractionMode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	versionsJSON, err := json.Marshal(versionIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal version ids")
	}
	fieldsJSON, err := json.Marshal(fieldKeys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal field keys")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, version_ids, field_keys, profile, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, versionsJSON, fieldsJSON, string(profile), string(mode), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		VersionIDs: versionIDs,
		FieldKeys:  fieldKeys,
		Profile:    profile,
		Mode:       mode,
		Status:     model.RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
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
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run summary")
		}
		summaryJSON = b
	}

	var errArg any
	if runErr != "" {
		errArg = runErr
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), summaryJSON, errArg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, version_ids, field_keys, profile, mode, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, version_ids, field_keys, profile, mode, status, summary, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateCells(ctx context.Context, runID string, seeds []CellSeed) ([]model.Cell, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	cells := make([]model.Cell, 0, len(seeds))
	rows := make([][]any, 0, len(seeds))
	for _, seed := range seeds {
		cell := model.Cell{
			ID:        uuid.New().String(),
			RunID:     runID,
			VersionID: seed.VersionID,
			FieldKey:  seed.FieldKey,
			State:     model.CellPending,
			CreatedAt: now,
		}
		cells = append(cells, cell)
		rows = append(rows, []any{cell.ID, runID, cell.VersionID, cell.FieldKey, string(cell.State), now})
	}

	if _, err := db.CopyFrom(ctx, s.pool, "cells",
		[]string{"id", "run_id", "version_id", "field_key", "state", "created_at"}, rows,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: create cells for run %s", runID)
	}
	return cells, nil
}

func (s *PostgresStore) CompleteCell(ctx context.Context, cellID string, state model.CellState, result *model.CellResult) error {
	if !state.Terminal() {
		return eris.Errorf("postgres: cell state %s is not terminal", state)
	}

	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal cell result")
		}
		resultJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE cells SET state = $1, result = $2 WHERE id = $3`,
		string(state), resultJSON, cellID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete cell %s", cellID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("cell not found: %s", cellID)
	}
	return nil
}

func (s *PostgresStore) GetCell(ctx context.Context, cellID string) (*model.Cell, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, version_id, field_key, state, result, created_at FROM cells WHERE id = $1`,
		cellID,
	)
	c, err := scanPgCell(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cell %s", cellID)
	}
	return c, nil
}

func (s *PostgresStore) ListCells(ctx context.Context, runID string) ([]model.Cell, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, version_id, field_key, state, result, created_at FROM cells WHERE run_id = $1 ORDER BY version_id, field_key`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list cells for run %s", runID)
	}
	defer rows.Close()

	var cells []model.Cell
	for rows.Next() {
		c, err := scanPgCell(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		cells = append(cells, *c)
	}
	return cells, eris.Wrap(rows.Err(), "postgres: list cells iterate")
}

func (s *PostgresStore) GetEmbeddings(ctx context.Context, versionID, embedModel string, blockIDs []string) (map[string][]float64, error) {
	if len(blockIDs) == 0 {
		return map[string][]float64{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT block_id, vector FROM embedding_cache WHERE version_id = $1 AND model = $2 AND block_id = ANY($3)`,
		versionID, embedModel, blockIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get embeddings")
	}
	defer rows.Close()

	out := make(map[string][]float64, len(blockIDs))
	for rows.Next() {
		var blockID string
		var vectorJSON []byte
		if err := rows.Scan(&blockID, &vectorJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding")
		}
		var vec []float64
		if err := json.Unmarshal(vectorJSON, &vec); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal embedding %s", blockID)
		}
		out[blockID] = vec
	}
	return out, eris.Wrap(rows.Err(), "postgres: get embeddings iterate")
}

func (s *PostgresStore) PutEmbeddings(ctx context.Context, versionID, embedModel string, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(vectors))
	for blockID, vec := range vectors {
		vectorJSON, err := json.Marshal(vec)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal embedding %s", blockID)
		}
		rows = append(rows, []any{versionID, blockID, embedModel, vectorJSON, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "embedding_cache",
		Columns:      []string{"version_id", "block_id", "model", "vector", "updated_at"},
		ConflictKeys: []string{"version_id", "block_id", "model"},
	}, rows)
	return eris.Wrap(err, "postgres: put embeddings")
}

// pg scan helpers

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var versionsJSON, fieldsJSON []byte
	var summaryJSON *[]byte
	var errText *string

	err := row.Scan(&r.ID, &versionsJSON, &fieldsJSON, &r.Profile, &r.Mode, &r.Status,
		&summaryJSON, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("run not found")
		}
		return nil, err
	}

	if err := json.Unmarshal(versionsJSON, &r.VersionIDs); err != nil {
		return nil, eris.Wrap(err, "unmarshal version ids")
	}
	if err := json.Unmarshal(fieldsJSON, &r.FieldKeys); err != nil {
		return nil, eris.Wrap(err, "unmarshal field keys")
	}
	if summaryJSON != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(*summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal run summary")
		}
	}
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}

func scanPgCell(row pgx.Row) (*model.Cell, error) {
	var c model.Cell
	var resultJSON *[]byte

	err := row.Scan(&c.ID, &c.RunID, &c.VersionID, &c.FieldKey, &c.State, &resultJSON, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("cell not found")
		}
		return nil, err
	}

	if resultJSON != nil {
		c.Result = &model.CellResult{}
		if err := json.Unmarshal(*resultJSON, c.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal cell result")
		}
	}
	return &c, nil
}
