package usp

import (
	"encoding/json"
	"sync"
	"time"
)

// telemetryEvent is one (name, timestamp) pair recorded against a request id.
type telemetryEvent struct {
	Name      string `json:"name"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// SinkFunc delivers a serialized telemetry payload for one request id to
// the transport. It is supplied by the owning [Context] as a plain
// closure — the recorder never holds a pointer back to the Context itself,
// only this function value, so the back-reference described in the
// ownership model never becomes a strong reference cycle.
type SinkFunc func(requestID string, payload []byte) error

// Telemetry is a growable event log keyed by request_id. Events are
// timestamped against a monotonic clock captured once when the recorder is
// created; [Telemetry.Flush] serializes the accumulated block for one
// request id and hands it to the configured sink.
type Telemetry struct {
	start time.Time
	sink  SinkFunc

	mu     sync.Mutex
	events map[string][]telemetryEvent
}

// NewTelemetry creates an empty recorder. sink may be nil; events are then
// discarded on flush instead of delivered, which is useful in tests that
// don't care about the wire payload.
func NewTelemetry(sink SinkFunc) *Telemetry {
	return &Telemetry{
		start:  time.Now(),
		sink:   sink,
		events: make(map[string][]telemetryEvent),
	}
}

// Record appends a named event to the log for requestID, timestamped
// against the recorder's monotonic start time.
func (t *Telemetry) Record(requestID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[requestID] = append(t.events[requestID], telemetryEvent{
		Name:      name,
		ElapsedMS: time.Since(t.start).Milliseconds(),
	})
}

// AudioStart records the audio_start event, marking the beginning of an
// upstream audio turn.
func (t *Telemetry) AudioStart(requestID string) { t.Record(requestID, "audio_start") }

// AudioEnd records the audio_end event, marking the end of an upstream
// audio turn.
func (t *Telemetry) AudioEnd(requestID string) { t.Record(requestID, "audio_end") }

// Flush serializes the accumulated event block for requestID and invokes
// the configured sink with the payload. The block is cleared afterward
// regardless of whether the sink returns an error. Flushing a request id
// with no recorded events is a no-op.
func (t *Telemetry) Flush(requestID string) error {
	t.mu.Lock()
	events, ok := t.events[requestID]
	delete(t.events, requestID)
	t.mu.Unlock()

	if !ok || len(events) == 0 || t.sink == nil {
		return nil
	}

	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return t.sink(requestID, payload)
}

// Close discards any unflushed event blocks. It exists so a Context can
// release telemetry resources deterministically during destroy, ahead of
// tearing down anything the sink closure might capture.
func (t *Telemetry) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.sink = nil
}
