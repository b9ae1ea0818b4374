// Package serverstore is the server's durable Postgres store: per-kind
// aggregate tables upserted by (agent_id, task_name, period_start,
// period_end), the agent registry, and the config-error log
// (spec.md §4.6).
//
// It builds directly on the teacher's generic internal/database
// connection pool, migration runner and Repository transaction/retry
// helpers rather than re-implementing them.
package serverstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/netprobe/fleet/internal/database"
	"github.com/netprobe/fleet/internal/wire"
)

// Store is the server's handle onto Postgres.
type Store struct {
	conn *database.Connection
	repo *database.Repository
}

func Open(cfg *database.ConnectionConfig) (*Store, error) {
	conn, err := database.NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn, repo: database.NewRepository(conn)}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Connection() *database.Connection {
	return s.conn
}

// UpsertMetric unmarshals m.Data per m.TaskType and upserts it into the
// matching per-kind table, scoped to agentID. Unknown task types are
// rejected rather than silently dropped.
func (s *Store) UpsertMetric(ctx context.Context, agentID string, m wire.AggregatedMetric) error {
	return s.repo.RetryableOperation(ctx, 3, func() error {
		return s.upsertOnce(ctx, agentID, m)
	})
}

func (s *Store) upsertOnce(ctx context.Context, agentID string, m wire.AggregatedMetric) error {
	switch m.TaskType {
	case "ping":
		var d wire.PingAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertPing(ctx, agentID, m, d)
	case "tcp":
		var d wire.TcpAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertTcp(ctx, agentID, m, d)
	case "tls_handshake":
		var d wire.TlsAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertTls(ctx, agentID, m, d)
	case "http_get":
		var d wire.HttpGetAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertHttpGet(ctx, agentID, m, d)
	case "http_content":
		var d wire.HttpContentAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertHttpContent(ctx, agentID, m, d)
	case "dns_query", "dns_query_doh":
		var d wire.DnsAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertDns(ctx, agentID, m, d)
	case "snmp":
		var d wire.SnmpAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertSnmp(ctx, agentID, m, d)
	case "bandwidth":
		var d wire.BandwidthAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertBandwidth(ctx, agentID, m, d)
	case "sql_query":
		var d wire.SqlAggregateData
		if err := unmarshal(m, &d); err != nil {
			return err
		}
		return s.upsertSql(ctx, agentID, m, d)
	default:
		return fmt.Errorf("serverstore: unknown task_type %q for task %q", m.TaskType, m.TaskName)
	}
}

func unmarshal(m wire.AggregatedMetric, out any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("serverstore: empty data for task %q (%s)", m.TaskName, m.TaskType)
	}
	return json.Unmarshal(m.Data, out)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// marshalDistribution re-serializes the wire's array-of-pairs shape to
// text for storage, matching the agent-side localstore convention
// (helpers.go's encodeStatusDistribution) so no re-keying is needed if
// the column is ever read back and forwarded.
func marshalDistribution(dist wire.StatusCodeDistribution) (string, error) {
	if dist == nil {
		dist = wire.StatusCodeDistribution{}
	}
	b, err := json.Marshal(dist)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalStrings(ss []string) (string, error) {
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
