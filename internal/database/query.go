package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const operationColumns = `
	id, target, started_at, finished_at, outcome,
	total, processed, bytes, deleted, skipped, failed,
	sweep_retried, sweep_failed, final_progress
`

// GetRecentOperations returns the N most recently started operations
func (h *HistoryDB) GetRecentOperations(limit int) ([]OperationRecord, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM operations
	ORDER BY started_at DESC
	LIMIT ?
	`

	return h.queryOperations(query, limit)
}

// GetOperationsByOutcome returns operations filtered by outcome
func (h *HistoryDB) GetOperationsByOutcome(outcome string, limit int) ([]OperationRecord, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM operations
	WHERE outcome = ?
	ORDER BY started_at DESC
	LIMIT ?
	`

	return h.queryOperations(query, outcome, limit)
}

// GetOperation returns a single operation by id
func (h *HistoryDB) GetOperation(id string) (*OperationRecord, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM operations
	WHERE id = ?
	`

	records, err := h.queryOperations(query, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// GetOperationItems returns the events of one operation in emission order,
// optionally limited to the given kinds
func (h *HistoryDB) GetOperationItems(id string, kinds ...string) ([]ItemRecord, error) {
	if _, err := h.GetOperation(id); err != nil {
		return nil, err
	}

	query := `
	SELECT operation_id, seq, timestamp, kind, message, progress
	FROM items
	WHERE operation_id = ?
	`
	args := []interface{}{id}
	if len(kinds) > 0 {
		query += " AND kind IN (?" + strings.Repeat(",?", len(kinds)-1) + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += " ORDER BY seq"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var it ItemRecord
		if err := rows.Scan(&it.OperationID, &it.Seq, &it.Timestamp, &it.Kind, &it.Message, &it.Progress); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOperationCountByOutcome returns count of operations grouped by outcome
func (h *HistoryDB) GetOperationCountByOutcome() (map[string]int, error) {
	rows, err := h.db.Query(`
	SELECT outcome, COUNT(*)
	FROM operations
	GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}

	return counts, rows.Err()
}

// DeleteOldRecords removes operations started more than olderThanDays ago,
// together with their items
func (h *HistoryDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tx, err := h.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM items WHERE operation_id IN (SELECT id FROM operations WHERE started_at < ?)
	`, cutoff); err != nil {
		return 0, err
	}
	result, err := tx.Exec(`DELETE FROM operations WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// queryOperations is a helper function to execute queries and scan results
func (h *HistoryDB) queryOperations(query string, args ...interface{}) ([]OperationRecord, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OperationRecord
	for rows.Next() {
		var r OperationRecord
		var finished sql.NullTime

		err := rows.Scan(
			&r.ID, &r.Target, &r.StartedAt, &finished, &r.Outcome,
			&r.Total, &r.Processed, &r.Bytes, &r.Deleted, &r.Skipped, &r.Failed,
			&r.SweepRetried, &r.SweepFailed, &r.FinalProgress,
		)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// IsNotFound reports whether err means the operation id is unknown
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
