package localstore

import (
	"context"
	"fmt"

	"github.com/netprobe/fleet/internal/models"
)

// ClosedWindow identifies one window ready for aggregation: it lies
// entirely in the past, has at least one raw sample, and has no
// aggregate row yet (spec.md §4.2).
type ClosedWindow struct {
	TaskName    string
	Kind        string
	PeriodStart uint64
	PeriodEnd   uint64
}

// ListClosedWindows scans every kind's raw table for task/window
// buckets that have samples but no matching aggregate row, keeping
// only buckets whose period_end has already elapsed.
func (s *Store) ListClosedWindows(ctx context.Context, now uint64) ([]ClosedWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ClosedWindow
	w := models.WindowSeconds
	for _, kt := range kindTables {
		query := fmt.Sprintf(`
			SELECT DISTINCT r.task_name, r.timestamp - (r.timestamp %% ?) AS period_start
			FROM %s r
			WHERE NOT EXISTS (
				SELECT 1 FROM %s a
				WHERE a.task_name = r.task_name AND a.period_start = r.timestamp - (r.timestamp %% ?)
			)`, kt.rawTable, kt.aggTable)

		rows, err := s.db.QueryContext(ctx, query, w, w)
		if err != nil {
			return nil, fmt.Errorf("list closed windows for %s: %w", kt.kind, err)
		}
		for rows.Next() {
			var taskName string
			var periodStart uint64
			if err := rows.Scan(&taskName, &periodStart); err != nil {
				rows.Close()
				return nil, err
			}
			periodEnd := periodStart + w
			// No grace period beyond period_end: grace=0 (see DESIGN.md Open
			// Question decisions for spec.md §4.4's grace knob).
			if periodEnd <= now {
				out = append(out, ClosedWindow{TaskName: taskName, Kind: kt.kind, PeriodStart: periodStart, PeriodEnd: periodEnd})
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
