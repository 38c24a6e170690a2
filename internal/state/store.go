package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	input_path   TEXT,
	config_hash  TEXT,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	processed    INTEGER NOT NULL DEFAULT 0,
	written      INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS artifacts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	line         INTEGER NOT NULL,
	seed_hex     TEXT NOT NULL,
	original     TEXT NOT NULL,
	instructions TEXT,
	final        TEXT NOT NULL,
	response     TEXT,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE (run_id, line),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	line         INTEGER,
	stage        TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	reason       TEXT,
	detail_json  TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

var ErrRunNotFound = errors.New("run not found")

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store is the SQLite run ledger.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for the provenance logger.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region runs
// BeginRun opens a new run and returns it with a fresh id.
func (s *Store) BeginRun(kind, inputPath, configHash string) (RunRecord, error) {
	rec := RunRecord{
		RunID:      uuid.New().String(),
		Kind:       kind,
		InputPath:  inputPath,
		ConfigHash: configHash,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, kind, input_path, config_hash, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.Kind, nullIfEmpty(inputPath), nullIfEmpty(configHash),
		rec.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// FinishRun stamps the end time and final counts.
func (s *Store) FinishRun(runID string, counts RunCounts) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, processed = ?, written = ?, skipped = ?, failed = ?
		 WHERE run_id = ?`,
		time.Now().UTC().Format(timeLayout),
		counts.Processed, counts.Written, counts.Skipped, counts.Failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun retrieves one run by id.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(runSelect+` WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// LatestRun returns the most recently started run of the given kind.
func (s *Store) LatestRun(kind string) (RunRecord, error) {
	row := s.db.QueryRow(runSelect+` WHERE kind = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, kind)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("latest %s run: %w", kind, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("latest %s run: %w", kind, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(runSelect+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const runSelect = `SELECT run_id, kind, input_path, config_hash, started_at, finished_at,
	processed, written, skipped, failed FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var input, hash, finished sql.NullString
	var started string
	err := row.Scan(&rec.RunID, &rec.Kind, &input, &hash, &started, &finished,
		&rec.Counts.Processed, &rec.Counts.Written, &rec.Counts.Skipped, &rec.Counts.Failed)
	if err != nil {
		return RunRecord{}, err
	}
	rec.InputPath = input.String
	rec.ConfigHash = hash.String
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return rec, nil
}

// #endregion runs

// #region artifacts
// RecordArtifact stores one processed line. A line is recorded once per run.
func (s *Store) RecordArtifact(rec ArtifactRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO artifacts (run_id, line, seed_hex, original, instructions, final, response, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Line, rec.SeedHex, rec.Original, nullIfEmpty(rec.Instructions),
		rec.Final, nullIfEmpty(rec.Response), rec.Status, rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return tx.Commit()
}

// ListArtifacts returns a run's artifacts in line order.
func (s *Store) ListArtifacts(runID string) ([]ArtifactRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, line, seed_hex, original, instructions, final, response, status, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY line`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var records []ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		var instructions, response sql.NullString
		var created string
		if err := rows.Scan(&rec.RunID, &rec.Line, &rec.SeedHex, &rec.Original, &instructions,
			&rec.Final, &response, &rec.Status, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Instructions = instructions.String
		rec.Response = response.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion artifacts

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
