package wire

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestStatusCodeDistributionSerializesAsPairArray(t *testing.T) {
	dist := NewStatusCodeDistribution(map[int]int{200: 10, 404: 2})

	raw, err := json.Marshal(dist)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("expected an array on the wire, got %s: %v", raw, err)
	}
	for _, pair := range generic {
		arr, ok := pair.([]any)
		if !ok || len(arr) != 2 {
			t.Fatalf("expected each entry to be a 2-element array, got %#v", pair)
		}
	}

	var roundTripped StatusCodeDistribution
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("unmarshal back into StatusCodeDistribution: %v", err)
	}
	if !reflect.DeepEqual(roundTripped.ToMap(), dist.ToMap()) {
		t.Fatalf("round trip mismatch: got %v, want %v", roundTripped.ToMap(), dist.ToMap())
	}
}

func TestStatusCodeDistributionHandlesEmpty(t *testing.T) {
	dist := NewStatusCodeDistribution(nil)
	raw, err := json.Marshal(dist)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected an empty array, got %s", raw)
	}
}

func TestAggregatedMetricRoundTripsPingData(t *testing.T) {
	data := PingAggregateData{
		AvgLatencyMs:      12.5,
		MaxLatencyMs:      20.1,
		MinLatencyMs:      8.3,
		PacketLossPercent: 0,
		SuccessfulPings:   10,
		FailedPings:       0,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal ping data: %v", err)
	}
	metric := AggregatedMetric{
		TaskName:    "ping-example",
		TaskType:    "ping",
		PeriodStart: 60,
		PeriodEnd:   120,
		SampleCount: 10,
		Data:        raw,
	}

	wireBytes, err := json.Marshal(metric)
	if err != nil {
		t.Fatalf("marshal metric: %v", err)
	}

	var decoded AggregatedMetric
	if err := json.Unmarshal(wireBytes, &decoded); err != nil {
		t.Fatalf("unmarshal metric: %v", err)
	}
	var decodedData PingAggregateData
	if err := json.Unmarshal(decoded.Data, &decodedData); err != nil {
		t.Fatalf("unmarshal nested ping data: %v", err)
	}
	if decodedData != data {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decodedData, data)
	}
}
