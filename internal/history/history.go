// Package history persists chain execution records in SQLite. The store is
// bookkeeping only (no scraped content) and feeds historical success rates
// back into chain generation.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/generator"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	chain_id      TEXT NOT NULL,
	chain_name    TEXT NOT NULL,
	task_types    TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	completed     INTEGER NOT NULL,
	successful    INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_executions_chain ON executions(chain_id);
CREATE INDEX IF NOT EXISTS idx_executions_types ON executions(task_types);
`

// Record is one persisted chain execution.
type Record struct {
	ExecutionID  string
	ChainID      string
	ChainName    string
	TaskTypes    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	Success      bool
	Completed    int
	Successful   int
	ErrorMessage string
}

// Store wraps the SQLite connection.
type Store struct {
	sql  *sql.DB
	path string
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "replaychain", "history.db")
}

// Open opens or creates the database, applies pragmas, and creates the
// schema.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{sql: sqlDB, path: dbPath}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// RecordExecution implements executor.Recorder.
func (s *Store) RecordExecution(c *chain.ReplayChain, res *chain.ChainExecutionResult) error {
	_, err := s.sql.Exec(`
		INSERT INTO executions
			(id, chain_id, chain_name, task_types, started_at, finished_at,
			 duration_ms, success, completed, successful, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ExecutionID, c.ID, c.Name, typeKey(c.Nodes),
		res.StartedAt.UTC(), res.FinishedAt.UTC(),
		res.TotalDuration.Milliseconds(), boolToInt(res.Success),
		res.CompletedTasks, res.SuccessfulTasks, res.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// Executions returns the most recent records, newest first.
func (s *Store) Executions(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sql.Query(`
		SELECT id, chain_id, chain_name, task_types, started_at, finished_at,
		       duration_ms, success, completed, successful, error_message
		FROM executions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durationMS int64
		var success int
		if err := rows.Scan(&r.ExecutionID, &r.ChainID, &r.ChainName, &r.TaskTypes,
			&r.StartedAt, &r.FinishedAt, &durationMS, &success,
			&r.Completed, &r.Successful, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// SuccessProbability implements generator.SuccessProvider: the observed
// success rate of past executions over the same task-type set. Without
// history it falls back to the generator default.
func (s *Store) SuccessProbability(tasks []*chain.TaskNode) float64 {
	var total, succeeded int
	err := s.sql.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0)
		FROM executions
		WHERE task_types = ?`, typeKey(tasks)).Scan(&total, &succeeded)
	if err != nil || total == 0 {
		return generator.DefaultSuccessProbability
	}
	return float64(succeeded) / float64(total)
}

// typeKey produces a stable key for a set of task types: sorted, distinct,
// comma-joined.
func typeKey(tasks []*chain.TaskNode) string {
	seen := make(map[string]struct{}, len(tasks))
	var types []string
	for _, t := range tasks {
		if _, ok := seen[t.Type]; ok {
			continue
		}
		seen[t.Type] = struct{}{}
		types = append(types, t.Type)
	}
	sort.Strings(types)
	return strings.Join(types, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
