package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-legal/evidence-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	version_ids TEXT NOT NULL,
	field_keys  TEXT NOT NULL,
	profile     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	summary     TEXT,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cells (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	version_id TEXT NOT NULL,
	field_key  TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'pending',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	version_id TEXT NOT NULL,
	block_id   TEXT NOT NULL,
	model      TEXT NOT NULL,
	vector     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (version_id, block_id, model)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_cells_run_id ON cells(run_id);
CREATE INDEX IF NOT EXISTS idx_cells_state ON cells(state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, versionIDs, fieldKeys []string, profile model.QualityProfile, mode model.ExtractionMode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	versionsJSON, err := json.Marshal(versionIDs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal version ids")
	}
	fieldsJSON, err := json.Marshal(fieldKeys)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal field keys")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, version_ids, field_keys, profile, mode, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(versionsJSON), string(fieldsJSON), string(profile), string(mode),
		string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error {
	var summaryJSON sql.NullString
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run summary")
		}
		summaryJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), summaryJSON, nullString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version_ids, field_keys, profile, mode, status, summary, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, version_ids, field_keys, profile, mode, status, summary, error, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateCells(ctx context.Context, runID string, seeds []CellSeed) ([]model.Cell, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create cells")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cells (id, run_id, version_id, field_key, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert cell")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	cells := make([]model.Cell, 0, len(seeds))
	for _, seed := range seeds {
		cell := model.Cell{
			ID:        uuid.New().String(),
			RunID:     runID,
			VersionID: seed.VersionID,
			FieldKey:  seed.FieldKey,
			State:     model.CellPending,
			CreatedAt: now,
		}
		if _, err := stmt.ExecContext(ctx,
			cell.ID, cell.RunID, cell.VersionID, cell.FieldKey, string(cell.State), now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert cell for run %s", runID)
		}
		cells = append(cells, cell)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create cells")
	}
	return cells, nil
}

func (s *SQLiteStore) CompleteCell(ctx context.Context, cellID string, state model.CellState, result *model.CellResult) error {
	if !state.Terminal() {
		return eris.Errorf("sqlite: cell state %s is not terminal", state)
	}

	var resultJSON sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal cell result")
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cells SET state = ?, result = ? WHERE id = ?`,
		string(state), resultJSON, cellID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete cell %s", cellID)
	}
	return checkRowsAffected(res, "cell", cellID)
}

func (s *SQLiteStore) GetCell(ctx context.Context, cellID string) (*model.Cell, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, version_id, field_key, state, result, created_at FROM cells WHERE id = ?`,
		cellID,
	)
	return scanCell(row)
}

func (s *SQLiteStore) ListCells(ctx context.Context, runID string) ([]model.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, version_id, field_key, state, result, created_at
		 FROM cells WHERE run_id = ? ORDER BY version_id, field_key`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list cells for run %s", runID)
	}
	defer rows.Close()

	var cells []model.Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *c)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: list cells iterate")
}

func (s *SQLiteStore) GetEmbeddings(ctx context.Context, versionID, embedModel string, blockIDs []string) (map[string][]float64, error) {
	if len(blockIDs) == 0 {
		return map[string][]float64{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(blockIDs)), ",")
	args := make([]any, 0, len(blockIDs)+2)
	args = append(args, versionID, embedModel)
	for _, id := range blockIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, vector FROM embedding_cache
		 WHERE version_id = ? AND model = ? AND block_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get embeddings")
	}
	defer rows.Close()

	out := make(map[string][]float64, len(blockIDs))
	for rows.Next() {
		var blockID, vectorJSON string
		if err := rows.Scan(&blockID, &vectorJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding")
		}
		var vec []float64
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal embedding %s", blockID)
		}
		out[blockID] = vec
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get embeddings iterate")
}

func (s *SQLiteStore) PutEmbeddings(ctx context.Context, versionID, embedModel string, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put embeddings")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embedding_cache (version_id, block_id, model, vector, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(version_id, block_id, model)
		 DO UPDATE SET vector = excluded.vector, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert embedding")
	}
	defer stmt.Close()

	blockIDs := make([]string, 0, len(vectors))
	for id := range vectors {
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	now := time.Now().UTC()
	for _, blockID := range blockIDs {
		vectorJSON, err := json.Marshal(vectors[blockID])
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal embedding %s", blockID)
		}
		if _, err := stmt.ExecContext(ctx, versionID, blockID, embedModel, string(vectorJSON), now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert embedding %s", blockID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit put embeddings")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var versionsJSON, fieldsJSON string
	var summaryJSON, errText sql.NullString

	err := row.Scan(&r.ID, &versionsJSON, &fieldsJSON, &r.Profile, &r.Mode, &r.Status,
		&summaryJSON, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(versionsJSON), &r.VersionIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal version ids")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.FieldKeys); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal field keys")
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
		}
	}
	r.Error = errText.String
	return &r, nil
}

func scanCell(row scannable) (*model.Cell, error) {
	var c model.Cell
	var resultJSON sql.NullString

	err := row.Scan(&c.ID, &c.RunID, &c.VersionID, &c.FieldKey, &c.State, &resultJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("cell not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan cell")
	}

	if resultJSON.Valid {
		c.Result = &model.CellResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), c.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal cell result")
		}
	}
	return &c, nil
}
