//go:build sqlprobe

package probe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/netprobe/fleet/internal/models"
)

// SqlQuery is only compiled in with the sqlprobe build tag (spec.md §9);
// without it, sql_query tasks are still loaded and scheduled, and each
// run fails in agentrun's runSql.
func SqlQuery(ctx context.Context, task models.TaskConfig) models.RawSqlSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()

	driver := sqlDriverName(task.Params.DatabaseType)
	if driver == "" {
		return models.RawSqlSample{SampleBase: withError(base, fmt.Sprintf("unsupported database_type %q", task.Params.DatabaseType))}
	}

	db, err := sql.Open(driver, task.Params.DatabaseURL)
	if err != nil {
		return models.RawSqlSample{SampleBase: withError(base, fmt.Sprintf("failed to open connection: %v", err))}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, task.Params.Query)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawSqlSample{SampleBase: withError(base, timeoutError(timeout.Seconds()))}
		}
		return models.RawSqlSample{SampleBase: withError(base, fmt.Sprintf("query failed: %v", err))}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return models.RawSqlSample{SampleBase: withError(base, fmt.Sprintf("failed to read columns: %v", err))}
	}

	maxRows := task.Params.SqlMaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}
	maxJSON := task.Params.SqlJsonMaxSize
	if maxJSON <= 0 {
		maxJSON = 64 * 1024
	}

	var results []map[string]any
	rowCount := 0
	var scalar *float64
	for rows.Next() {
		rowCount++
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.RawSqlSample{SampleBase: withError(base, fmt.Sprintf("scan failed: %v", err))}
		}
		if task.Params.ScalarMode && rowCount == 1 && len(vals) > 0 {
			if f, ok := toFloat(vals[0]); ok {
				scalar = &f
			}
		}
		if rowCount <= maxRows {
			m := make(map[string]any, len(cols))
			for i, c := range cols {
				m[c] = vals[i]
			}
			results = append(results, m)
		}
	}
	totalMs := msSince(start)

	if task.Params.ScalarMode {
		return models.RawSqlSample{
			SampleBase:  withSuccess(base),
			TotalMs:     floatPtr(totalMs),
			RowCount:    intPtr(rowCount),
			ScalarValue: scalar,
		}
	}

	jsonBytes, err := json.Marshal(results)
	truncated := false
	if err == nil && len(jsonBytes) > maxJSON {
		jsonBytes = jsonBytes[:maxJSON]
		truncated = true
	}
	jsonStr := string(jsonBytes)
	return models.RawSqlSample{
		SampleBase:    withSuccess(base),
		TotalMs:       floatPtr(totalMs),
		RowCount:      intPtr(rowCount),
		JSONResult:    &jsonStr,
		JSONTruncated: truncated,
	}
}

func sqlDriverName(databaseType string) string {
	switch databaseType {
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(n), "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
