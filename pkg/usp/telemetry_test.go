package usp

import (
	"encoding/json"
	"testing"
)

func TestTelemetryFlushInvokesSink(t *testing.T) {
	var gotRequestID string
	var gotPayload []byte
	sink := func(requestID string, payload []byte) error {
		gotRequestID = requestID
		gotPayload = payload
		return nil
	}

	tel := NewTelemetry(sink)
	tel.Record("req-1", "audiostream_init")
	tel.AudioStart("req-1")
	tel.AudioEnd("req-1")

	if err := tel.Flush("req-1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if gotRequestID != "req-1" {
		t.Fatalf("sink requestID = %q, want %q", gotRequestID, "req-1")
	}

	var events []telemetryEvent
	if err := json.Unmarshal(gotPayload, &events); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Name != "audiostream_init" || events[1].Name != "audio_start" || events[2].Name != "audio_end" {
		t.Fatalf("events = %+v, want [audiostream_init audio_start audio_end]", events)
	}
}

func TestTelemetryFlushClearsBlock(t *testing.T) {
	calls := 0
	tel := NewTelemetry(func(string, []byte) error { calls++; return nil })

	tel.Record("req-1", "audio_start")
	if err := tel.Flush("req-1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := tel.Flush("req-1"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	if calls != 1 {
		t.Fatalf("sink called %d times, want 1 (second flush of an empty block is a no-op)", calls)
	}
}

func TestTelemetryFlushWithNilSinkDiscards(t *testing.T) {
	tel := NewTelemetry(nil)
	tel.Record("req-1", "audio_start")
	if err := tel.Flush("req-1"); err != nil {
		t.Fatalf("Flush with nil sink: %v", err)
	}
}

func TestTelemetryKeepsRequestsIndependent(t *testing.T) {
	flushed := map[string]int{}
	tel := NewTelemetry(func(requestID string, payload []byte) error {
		var events []telemetryEvent
		json.Unmarshal(payload, &events)
		flushed[requestID] = len(events)
		return nil
	})

	tel.Record("req-1", "a")
	tel.Record("req-2", "b")
	tel.Record("req-2", "c")

	tel.Flush("req-1")
	tel.Flush("req-2")

	if flushed["req-1"] != 1 || flushed["req-2"] != 2 {
		t.Fatalf("flushed = %v, want map[req-1:1 req-2:2]", flushed)
	}
}
