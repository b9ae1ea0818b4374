package serverstore

import (
	"testing"

	"github.com/netprobe/fleet/internal/wire"
)

func TestMarshalDistributionRoundTrips(t *testing.T) {
	dist := wire.NewStatusCodeDistribution(map[int]int{200: 10, 404: 2})
	s, err := marshalDistribution(dist)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if s == "" {
		t.Fatal("expected non-empty encoded distribution")
	}
}

func TestMarshalDistributionHandlesNil(t *testing.T) {
	s, err := marshalDistribution(nil)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if s != "[]" {
		t.Fatalf("expected empty array for nil distribution, got %q", s)
	}
}

func TestMarshalStrings(t *testing.T) {
	s, err := marshalStrings([]string{"1.1.1.1", "1.0.0.1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if s != `["1.1.1.1","1.0.0.1"]` {
		t.Fatalf("unexpected encoding: %s", s)
	}
}

func TestAggTablesCoverEveryKind(t *testing.T) {
	want := []string{
		"agg_metric_ping", "agg_metric_tcp", "agg_metric_tls",
		"agg_metric_httpget", "agg_metric_httpcontent", "agg_metric_dns",
		"agg_metric_snmp", "agg_metric_bandwidth", "agg_metric_sql",
	}
	if len(aggTables) != len(want) {
		t.Fatalf("expected %d aggregate tables, got %d", len(want), len(aggTables))
	}
	for i, name := range want {
		if aggTables[i] != name {
			t.Fatalf("aggTables[%d] = %s, want %s", i, aggTables[i], name)
		}
	}
}

func TestUpsertOnceRejectsUnknownTaskType(t *testing.T) {
	s := &Store{}
	err := s.upsertOnce(nil, "agent-1", wire.AggregatedMetric{TaskName: "x", TaskType: "not_a_real_kind"})
	if err == nil {
		t.Fatal("expected error for unknown task type")
	}
}
