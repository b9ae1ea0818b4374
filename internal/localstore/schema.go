package localstore

import (
	"context"
	"database/sql"
)

// allTableCreators lists every probe kind's create-tables function; new
// kinds register themselves here.
var allTableCreators = []func(context.Context, *sql.DB) error{
	createPingTables,
	createTcpTables,
	createTlsTables,
	createHttpGetTables,
	createHttpContentTables,
	createDnsTables,
	createSnmpTables,
	createBandwidthTables,
}

func exec(ctx context.Context, db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
