//go:build !sqlprobe

package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/netprobe/fleet/internal/wire"
)

// insertSqlRawDispatch, aggregateAndStoreSql, and cleanupSqlDispatch have
// no real implementation when the agent is built without the sqlprobe
// tag: the sql kind never has tables, so every call into it returns an
// error at run time. Nothing rejects sql_query tasks when the task file
// is loaded in this build.
func insertSqlRawDispatch(ctx context.Context, s *Store, sample any) (int64, error) {
	return 0, fmt.Errorf("sql probe support not built into this agent")
}

func aggregateAndStoreSql(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (int64, bool, error) {
	return 0, false, fmt.Errorf("sql probe support not built into this agent")
}

func cleanupSqlDispatch(ctx context.Context, tx *sql.Tx, cutoff int64) (int64, int64, error) {
	return 0, 0, nil
}

func loadSqlForSend(s *Store, rowID int64, taskType string) (wire.AggregatedMetric, error) {
	return wire.AggregatedMetric{}, fmt.Errorf("sql probe support not built into this agent")
}
