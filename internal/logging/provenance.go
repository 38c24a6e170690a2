package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-outcome
// LogOutcome writes a per-line outcome to the provenance_log table.
func LogOutcome(db *sql.DB, entry OutcomeEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (run_id, line, stage, outcome, reason, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Line,
		entry.Stage,
		entry.Outcome,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.DetailJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	return nil
}

// #endregion log-outcome

// #region list-outcomes
// ListOutcomes returns a run's provenance rows in insertion order.
func ListOutcomes(db *sql.DB, runID string) ([]OutcomeEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, line, stage, outcome, reason, detail_json, created_at
		 FROM provenance_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeEntry
	for rows.Next() {
		var e OutcomeEntry
		var line sql.NullInt64
		var reason, detail sql.NullString
		var created string
		if err := rows.Scan(&e.RunID, &line, &e.Stage, &e.Outcome, &reason, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Line = int(line.Int64)
		e.Reason = reason.String
		e.DetailJSON = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-outcomes

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
