package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart       EventKind = "run_start"
	EventRunEnd         EventKind = "run_end"
	EventThought        EventKind = "thought"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventFormatError    EventKind = "format_error"
	EventCompression    EventKind = "compression"
	EventPlanCreated    EventKind = "plan_created"
	EventStepStart      EventKind = "step_start"
	EventStepEnd        EventKind = "step_end"
	EventCritique       EventKind = "critique"
	EventRevision       EventKind = "revision"
	EventLoopDetection  EventKind = "loop_detection"
	EventIterationLimit EventKind = "iteration_limit"
	EventError          EventKind = "error"
)

// Event is a typed progress notification for the host.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to the host through a buffered channel. It is
// the only part of a run touched by another goroutine.
type EventEmitter struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer (256 when <= 0).
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event without blocking. Events are dropped when the buffer
// is full or the emitter is closed. A nil emitter is a no-op.
func (e *EventEmitter) Emit(runID string, kind EventKind, data map[string]any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- Event{Kind: kind, Timestamp: time.Now(), RunID: runID, Data: data}:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
