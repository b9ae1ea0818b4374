package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueueStatus is the send-queue entry lifecycle state (spec.md §3).
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueInFlight QueueStatus = "in_flight"
	QueueSent     QueueStatus = "sent"
	QueueFailed   QueueStatus = "failed"
)

// QueueEntry is one row of metric_send_queue.
type QueueEntry struct {
	QueueID       int64
	TaskName      string
	MetricType    string
	MetricRowID   int64
	Status        QueueStatus
	Attempts      int
	LastAttemptTs *int64
	CreatedTs     int64
}

func createQueueTable(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS metric_send_queue (
			queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			metric_type TEXT NOT NULL,
			metric_row_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_ts INTEGER,
			created_ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status ON metric_send_queue(status, created_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_metric ON metric_send_queue(metric_type, metric_row_id)`,
	)
}

// enqueueForSendTx inserts a pending queue entry pointing at an aggregate
// row, in the same transaction the caller is already inside (typically
// the aggregator, right after inserting the aggregate).
func enqueueForSendTx(ctx context.Context, tx *sql.Tx, taskName, metricType string, metricRowID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO metric_send_queue (task_name, metric_type, metric_row_id, status, attempts, created_ts)
		 VALUES (?, ?, ?, 'pending', 0, ?)`,
		taskName, metricType, metricRowID, time.Now().Unix())
	return err
}

// TakeBatch marks up to n oldest-by-created_ts pending entries in_flight
// and returns them. Callers MUST later commit Sent or revert to Pending.
func (s *Store) TakeBatch(ctx context.Context, n int) ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT queue_id, task_name, metric_type, metric_row_id, status, attempts, last_attempt_ts, created_ts
			 FROM metric_send_queue WHERE status = 'pending' ORDER BY created_ts ASC LIMIT ?`, n)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, n)
		for rows.Next() {
			var e QueueEntry
			var lastAttempt sql.NullInt64
			if err := rows.Scan(&e.QueueID, &e.TaskName, &e.MetricType, &e.MetricRowID, &e.Status, &e.Attempts, &lastAttempt, &e.CreatedTs); err != nil {
				rows.Close()
				return err
			}
			if lastAttempt.Valid {
				e.LastAttemptTs = &lastAttempt.Int64
			}
			entries = append(entries, e)
			ids = append(ids, e.QueueID)
		}
		rows.Close()

		now := time.Now().Unix()
		for i := range entries {
			if _, err := tx.ExecContext(ctx,
				`UPDATE metric_send_queue SET status = 'in_flight', last_attempt_ts = ? WHERE queue_id = ?`,
				now, ids[i]); err != nil {
				return err
			}
			entries[i].Status = QueueInFlight
			entries[i].LastAttemptTs = &now
		}
		return nil
	})
	return entries, err
}

// MarkSent transitions a batch of entries to the terminal Sent state.
func (s *Store) MarkSent(ctx context.Context, queueIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range queueIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE metric_send_queue SET status = 'sent' WHERE queue_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRetry increments attempts and reverts an entry to Pending, or to
// the terminal Failed state once maxRetries is exceeded (spec.md §4.5).
func (s *Store) MarkRetry(ctx context.Context, queueID int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var attempts int
		if err := tx.QueryRowContext(ctx, `SELECT attempts FROM metric_send_queue WHERE queue_id = ?`, queueID).Scan(&attempts); err != nil {
			return err
		}
		attempts++
		status := QueuePending
		if attempts > maxRetries {
			status = QueueFailed
		}
		_, err := tx.ExecContext(ctx, `UPDATE metric_send_queue SET status = ?, attempts = ? WHERE queue_id = ?`, status, attempts, queueID)
		return err
	})
}

// QueueStats reports the number of send-queue rows per lifecycle
// status, for operator tooling (cmd/agentctl).
func (s *Store) QueueStats(ctx context.Context) (map[QueueStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM metric_send_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[QueueStatus]int64{QueuePending: 0, QueueInFlight: 0, QueueSent: 0, QueueFailed: 0}
	for rows.Next() {
		var status QueueStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// retentionCoupledDelete is the shared shape of every kind's aggregate
// cleanup: delete rows past cutoff unless a non-sent queue entry still
// points at them (spec.md §3 retention coupling invariant).
func retentionCoupledDelete(ctx context.Context, tx *sql.Tx, aggTable, metricType string, cutoff int64) (int64, error) {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE period_end < ? AND id NOT IN (
			SELECT metric_row_id FROM metric_send_queue WHERE metric_type = ? AND status != 'sent'
		)`, aggTable), cutoff, metricType)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
