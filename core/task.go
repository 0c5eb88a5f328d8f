package core

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task. Transitions are
// pending → running → {completed, failed}; the last two are terminal.
type TaskStatus string

// Task lifecycle states.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// StageState is the per-task state of one pipeline stage.
type StageState string

// Stage states. A skipped stage was excluded by configuration (for example
// image generation with IncludeImages disabled) and satisfies dependents the
// same way done does.
const (
	StagePending StageState = "pending"
	StageRunning StageState = "running"
	StageDone    StageState = "done"
	StageFailed  StageState = "failed"
	StageSkipped StageState = "skipped"
)

// Terminal reports whether the stage state is final.
func (s StageState) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageSkipped
}

// TaskConfig carries per-request generation settings.
type TaskConfig struct {
	// Template selects the document template kind (standard, academic,
	// business). Empty means standard.
	Template string `json:"template,omitempty"`
	// MaxSections caps the fan-out of section-driven stages. Zero means the
	// orchestrator default.
	MaxSections int `json:"max_sections,omitempty"`
	// IncludeImages enables the optional image generation stage.
	IncludeImages bool `json:"include_images,omitempty"`
}

// TaskRequest is the inbound submission accepted by the orchestrator.
type TaskRequest struct {
	Topic  string     `json:"topic"`
	Config TaskConfig `json:"config"`
}

// UnitResult is per-unit attempt telemetry surfaced by the stage executor.
type UnitResult struct {
	Index    int    `json:"index"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// StageStatus is the per-task record of one stage's execution.
type StageStatus struct {
	State       StageState   `json:"state"`
	Error       string       `json:"error,omitempty"`
	Units       []UnitResult `json:"units,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TaskError names the failing stage and the error class, deliberately hiding
// gateway internals from callers.
type TaskError struct {
	Stage   string     `json:"stage"`
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("task failed (%s): %s", e.Class, e.Message)
	}
	return fmt.Sprintf("stage %s failed (%s): %s", e.Stage, e.Class, e.Message)
}

// Task is the authoritative record of one generation request. Instances
// returned by a TaskStore are snapshots: fully consistent, safe to retain,
// and never mutated after return.
type Task struct {
	ID         string                 `json:"id"`
	Topic      string                 `json:"topic"`
	Config     TaskConfig             `json:"config"`
	Status     TaskStatus             `json:"status"`
	Progress   float64                `json:"progress"`
	Stages     map[string]StageStatus `json:"stages"`
	Err        *TaskError             `json:"error,omitempty"`
	ArtifactID string                 `json:"artifact_id,omitempty"`
	Document   Document               `json:"document"`
	Created    time.Time              `json:"created"`
	Updated    time.Time              `json:"updated"`
}

// Terminal reports whether the task reached completed or failed.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// StageStates projects the per-stage states, the shape the pipeline graph
// evaluates readiness against.
func (t *Task) StageStates() map[string]StageState {
	states := make(map[string]StageState, len(t.Stages))
	for name, st := range t.Stages {
		states[name] = st.State
	}
	return states
}

// Clone returns a deep copy of the task safe for independent mutation.
func (t *Task) Clone() *Task {
	clone := *t
	clone.Stages = make(map[string]StageStatus, len(t.Stages))
	for name, st := range t.Stages {
		cp := st
		cp.Units = append([]UnitResult(nil), st.Units...)
		if st.StartedAt != nil {
			started := *st.StartedAt
			cp.StartedAt = &started
		}
		if st.CompletedAt != nil {
			completed := *st.CompletedAt
			cp.CompletedAt = &completed
		}
		clone.Stages[name] = cp
	}
	if t.Err != nil {
		errCopy := *t.Err
		clone.Err = &errCopy
	}
	clone.Document = t.Document.Clone()
	return &clone
}

// StageResult is the aggregated outcome of running one stage for one task.
type StageResult struct {
	// Stage names the stage the result belongs to.
	Stage string
	// State is done, failed or skipped.
	State StageState
	// Output carries the merged contribution when State is done.
	Output StageOutput
	// Err is the first terminal error encountered when State is failed.
	Err error
	// Units holds per-unit attempt telemetry.
	Units []UnitResult
}
