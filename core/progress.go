package core

import (
	"context"
	"time"
)

// ProgressEvent is emitted on every stage transition and on terminal task
// transitions. The notification layer (polling endpoint, websocket push)
// consumes these; the orchestrator never blocks on a slow subscriber.
type ProgressEvent struct {
	TaskID    string     `json:"task_id"`
	Stage     string     `json:"stage,omitempty"`
	State     StageState `json:"state,omitempty"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Timestamp time.Time  `json:"timestamp"`
}

// ProgressSink receives progress events. Publish must not block; sinks that
// fan out to slow consumers are expected to buffer or drop internally.
type ProgressSink interface {
	Publish(ev ProgressEvent)
}

// Assembler is the downstream collaborator invoked once every required stage
// is done. It turns the accumulated document into a stored artifact and
// returns its handle.
type Assembler interface {
	Assemble(ctx context.Context, taskID string, doc Document) (string, error)
}
