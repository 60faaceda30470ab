// Package event defines the broadcast event vocabulary shared across
// tooling, loop, worker, and telemetry: everything that happens during
// a run that an external observer (dashboard, log, supervisor) might
// want to react to (spec section 6).
package event

import "time"

// Kind names one of the broadcastable event types.
type Kind string

const (
	KindAgentMessage    Kind = "agent-message"
	KindToolExecution   Kind = "tool-execution"
	KindTaskCreated     Kind = "task-created"
	KindTaskClaimed     Kind = "task-claimed"
	KindTaskCompleted   Kind = "task-completed"
	KindTaskFailed      Kind = "task-failed"
	KindWorkerSpawned   Kind = "worker-spawned"
	KindWorkerFinished  Kind = "worker-finished"
	KindAgentReport     Kind = "agent-report"
	KindFileCreated     Kind = "file-created"
	KindFileDeleted     Kind = "file-deleted"
	KindFileMoved       Kind = "file-moved"
	KindSystemEvent     Kind = "system-event"
	KindStreamChunk     Kind = "stream-chunk"
	KindLoopProgress    Kind = "loop-progress"
	KindLoopStalled     Kind = "loop-stalled"
	KindLoopWarning     Kind = "loop-warning"
	KindLoopCheckpoint  Kind = "loop-checkpoint"
)

// Event is one broadcastable occurrence.
type Event struct {
	Kind      Kind           `json:"kind"`
	AgentID   string         `json:"agentId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New builds an Event stamped with the current time.
func New(kind Kind, agentID string, data map[string]any) Event {
	return Event{Kind: kind, AgentID: agentID, Timestamp: time.Now(), Data: data}
}

// Sink receives events. Implementations must not block the publisher
// for long; a slow or full subscriber should drop events rather than
// stall the caller.
type Sink interface {
	Publish(Event)
}

// NopSink discards every event. Useful as a default when no sink is
// configured.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}
