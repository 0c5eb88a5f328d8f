package core

// TaskStore is the authoritative mutable record of task lifecycles. All task
// mutation funnels through it; mutations for a given id are serialized so
// readers always observe fully consistent snapshots.
//
// Create, Get and Apply are the essential contract; StartStage, Complete,
// Fail and Cancel are the narrow extensions the orchestrator state machine
// needs to keep every transition inside the single-writer discipline.
// Implementations must reject any mutation of a terminal task with
// ErrTaskTerminal.
type TaskStore interface {
	// Create allocates a new pending task for the request and returns its
	// snapshot.
	Create(req TaskRequest) (*Task, error)

	// Get returns a snapshot of the task or ErrTaskNotFound.
	Get(id string) (*Task, error)

	// StartStage transitions a stage to running, moving the task itself from
	// pending to running on the first dispatch.
	StartStage(id, stage string) (*Task, error)

	// Apply folds a stage result into the task: records the stage status and
	// telemetry, merges the output into the document, recomputes progress and
	// evaluates failure terminality (a failed required stage fails the task).
	Apply(id string, res StageResult) (*Task, error)

	// Complete transitions a running task to completed, recording the final
	// artifact handle.
	Complete(id, artifactID string) (*Task, error)

	// Fail transitions a running task to failed with the given stage error.
	Fail(id, stage string, err error) (*Task, error)

	// Cancel transitions a running task to failed with a CancellationError.
	Cancel(id, reason string) (*Task, error)
}

// ArtifactStore persists final document artifacts keyed by task and artifact
// id. The orchestrator only requires this narrow contract; durable backends
// can be substituted without touching calling code.
type ArtifactStore interface {
	Save(taskID, artifactID string, data []byte) error
	Get(taskID, artifactID string) ([]byte, error)
	List(taskID string) ([]string, error)
	Delete(taskID, artifactID string) error
}
