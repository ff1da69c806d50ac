package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// History records run and task outcomes in an sqlite database under the
// workspace. A nil *History is valid: every method is a no-op, so callers
// never branch on whether history is enabled.
type History struct {
	conn *sql.DB
}

// HistoryFileName is the database file under .kugutsu/.
const HistoryFileName = "history.db"

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	request     TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	merged      INTEGER,
	failed      INTEGER,
	blocked     INTEGER
);
CREATE TABLE IF NOT EXISTS task_outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	task_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER,
	error       TEXT,
	PRIMARY KEY (run_id, task_id)
);
`

// OpenHistory opens (creating if needed) the history database under root.
func OpenHistory(root string) (*History, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(root, HistoryFileName))
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec(historySchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &History{conn: conn}, nil
}

// RecordRunStart inserts the run row.
func (h *History) RecordRunStart(runID, request string, startedAt time.Time) error {
	if h == nil {
		return nil
	}
	_, err := h.conn.Exec(
		`INSERT INTO runs (id, request, started_at) VALUES (?, ?, ?)`,
		runID, request, startedAt.UTC())
	return err
}

// RecordRunFinish completes the run row with final tallies.
func (h *History) RecordRunFinish(runID string, finishedAt time.Time, merged, failed, blocked int) error {
	if h == nil {
		return nil
	}
	_, err := h.conn.Exec(
		`UPDATE runs SET finished_at = ?, merged = ?, failed = ?, blocked = ? WHERE id = ?`,
		finishedAt.UTC(), merged, failed, blocked, runID)
	return err
}

// RecordTaskOutcome upserts a task's final state for the run.
func (h *History) RecordTaskOutcome(runID, taskID, title, taskType, status string, duration time.Duration, errMsg string) error {
	if h == nil {
		return nil
	}
	_, err := h.conn.Exec(
		`INSERT INTO task_outcomes (run_id, task_id, title, type, status, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, task_id) DO UPDATE SET
		   status = excluded.status,
		   duration_ms = excluded.duration_ms,
		   error = excluded.error`,
		runID, taskID, title, taskType, status, duration.Milliseconds(), errMsg)
	return err
}

// TaskOutcome is one recorded task result.
type TaskOutcome struct {
	TaskID   string
	Title    string
	Type     string
	Status   string
	Duration time.Duration
	Error    string
}

// TaskOutcomes returns the recorded outcomes for a run, ordered by task ID.
func (h *History) TaskOutcomes(runID string) ([]TaskOutcome, error) {
	if h == nil {
		return nil, nil
	}
	rows, err := h.conn.Query(
		`SELECT task_id, title, type, status, duration_ms, COALESCE(error, '')
		 FROM task_outcomes WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []TaskOutcome
	for rows.Next() {
		var o TaskOutcome
		var durationMS int64
		if err := rows.Scan(&o.TaskID, &o.Title, &o.Type, &o.Status, &durationMS, &o.Error); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Close closes the database. Safe on nil.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.conn.Close()
}
