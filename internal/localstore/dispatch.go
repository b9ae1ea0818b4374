package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/netprobe/fleet/internal/models"
)

// InsertRaw dispatches a raw sample to its kind-specific insert, keyed
// by the concrete sample type rather than a string tag, so a caller
// that already has a typed sample from a probe executor doesn't need
// to know the kind key.
func (s *Store) InsertRaw(ctx context.Context, sample any) (int64, error) {
	switch m := sample.(type) {
	case models.RawPingSample:
		return s.InsertPingRaw(ctx, m)
	case models.RawTcpSample:
		return s.InsertTcpRaw(ctx, m)
	case models.RawTlsSample:
		return s.InsertTlsRaw(ctx, m)
	case models.RawHttpGetSample:
		return s.InsertHttpGetRaw(ctx, m)
	case models.RawHttpContentSample:
		return s.InsertHttpContentRaw(ctx, m)
	case models.RawDnsSample:
		return s.InsertDnsRaw(ctx, m)
	case models.RawSnmpSample:
		return s.InsertSnmpRaw(ctx, m)
	case models.RawBandwidthSample:
		return s.InsertBandwidthRaw(ctx, m)
	default:
		return insertSqlRawDispatch(ctx, s, sample)
	}
}

// AggregateWindow computes, stores, and enqueues-for-send the
// aggregate for one closed window, as a single transaction (spec.md
// §4.4): the aggregate insert and its queue entry commit together, or
// neither does.
func (s *Store) AggregateWindow(ctx context.Context, w ClosedWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var rowID int64
		var err error

		switch w.Kind {
		case kindPing:
			agg, aerr := aggregatePingWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storePingAggregate(ctx, tx, agg)
		case kindTcp:
			agg, aerr := aggregateTcpWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeTcpAggregate(ctx, tx, agg)
		case kindTls:
			agg, aerr := aggregateTlsWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeTlsAggregate(ctx, tx, agg)
		case kindHttpGet:
			agg, aerr := aggregateHttpGetWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeHttpGetAggregate(ctx, tx, agg)
		case kindHttpContent:
			agg, aerr := aggregateHttpContentWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeHttpContentAggregate(ctx, tx, agg)
		case kindDns:
			agg, aerr := aggregateDnsWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeDnsAggregate(ctx, tx, agg)
		case kindSnmp:
			agg, aerr := aggregateSnmpWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeSnmpAggregate(ctx, tx, agg)
		case kindBandwidth:
			agg, aerr := aggregateBandwidthWindow(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if aerr != nil || agg == nil {
				return aerr
			}
			rowID, err = storeBandwidthAggregate(ctx, tx, agg)
		case kindSql:
			var found bool
			rowID, found, err = aggregateAndStoreSql(ctx, tx, w.TaskName, w.PeriodStart, w.PeriodEnd)
			if err != nil || !found {
				return err
			}
		default:
			return fmt.Errorf("aggregate window: unknown kind %q", w.Kind)
		}
		if err != nil {
			return err
		}
		return enqueueForSendTx(ctx, tx, w.TaskName, w.Kind, rowID)
	})
}
