package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maruaican/Quick-Folder-Deleter/internal/deletion"
)

var ErrNotFound = errors.New("operation not found")

// OutcomeRunning marks an operation that has not reported its result yet
const OutcomeRunning = "running"

// HistoryDB manages the SQLite database for deletion history
type HistoryDB struct {
	db *sql.DB
}

// OperationRecord is one deletion request
type OperationRecord struct {
	ID            string     `json:"id"`
	Target        string     `json:"target"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Outcome       string     `json:"outcome"`
	Total         int        `json:"total"`
	Processed     int        `json:"processed"`
	Bytes         int64      `json:"bytes"`
	Deleted       int        `json:"deleted"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	SweepRetried  int        `json:"sweep_retried"`
	SweepFailed   int        `json:"sweep_failed"`
	FinalProgress int        `json:"final_progress"`
}

// ItemRecord is one event of an operation, in emission order
type ItemRecord struct {
	OperationID string    `json:"operation_id"`
	Seq         int       `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Progress    int       `json:"progress"`
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing; concurrent operations
	// wait for the writer lock instead of failing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Executing a query instead of Ping() makes sure the file is created
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// Enable WAL mode for better concurrency (multiple readers, one writer)
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Optimize for write performance
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (h *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		outcome TEXT NOT NULL DEFAULT 'running',

		total INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		sweep_retried INTEGER NOT NULL DEFAULT 0,
		sweep_failed INTEGER NOT NULL DEFAULT 0,
		final_progress INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL REFERENCES operations(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		progress INTEGER NOT NULL,
		UNIQUE (operation_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_operations_started_at ON operations(started_at);
	CREATE INDEX IF NOT EXISTS idx_operations_outcome ON operations(outcome);
	CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := h.db.Exec(schema)
	return err
}

// StartOperation records a new operation. Recording the same id twice is a no-op.
func (h *HistoryDB) StartOperation(id, target string, startedAt time.Time) error {
	_, err := h.db.Exec(`
		INSERT OR IGNORE INTO operations (id, target, started_at, outcome)
		VALUES (?, ?, ?, ?)
	`, id, target, startedAt, OutcomeRunning)
	return err
}

// RecordItem appends one event of an operation
func (h *HistoryDB) RecordItem(item ItemRecord) error {
	_, err := h.db.Exec(`
		INSERT INTO items (operation_id, seq, timestamp, kind, message, progress)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.OperationID, item.Seq, item.Timestamp, item.Kind, item.Message, item.Progress)
	return err
}

// FinishOperation stores the result of a finished operation, creating the
// row when no event was recorded for it
func (h *HistoryDB) FinishOperation(res deletion.Result) error {
	if err := h.StartOperation(res.ID, res.Target, res.Started); err != nil {
		return err
	}

	var final sql.NullInt64
	err := h.db.QueryRow(`
		SELECT progress FROM items WHERE operation_id = ? ORDER BY seq DESC LIMIT 1
	`, res.ID).Scan(&final)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = h.db.Exec(`
		UPDATE operations SET
			finished_at = ?, outcome = ?,
			total = ?, processed = ?, bytes = ?,
			deleted = ?, skipped = ?, failed = ?,
			sweep_retried = ?, sweep_failed = ?,
			final_progress = ?
		WHERE id = ?
	`,
		res.Finished, string(res.Outcome),
		res.Total, res.Processed, res.Bytes,
		res.Walk.Deleted, res.Walk.Skipped, res.Walk.Failed,
		res.Sweep.Retried, res.Sweep.Failed,
		final.Int64,
		res.ID,
	)
	return err
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Ping verifies the database is still reachable
func (h *HistoryDB) Ping() error {
	return h.db.Ping()
}

// Vacuum optimizes the database (run periodically)
func (h *HistoryDB) Vacuum() error {
	_, err := h.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (h *HistoryDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var operations, items int64
	if err := h.db.QueryRow("SELECT COUNT(*) FROM operations").Scan(&operations); err != nil {
		return nil, err
	}
	if err := h.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&items); err != nil {
		return nil, err
	}
	stats["total_operations"] = operations
	stats["total_items"] = items

	// Database size
	var pageCount, pageSize int64
	if err := h.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := h.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	return stats, nil
}
