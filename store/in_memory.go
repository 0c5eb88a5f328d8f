package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/pipeline"
)

// InMemoryStore is a volatile core.TaskStore keeping all tasks in a process
// local map. Each task is guarded by its own mutex so mutations for one id
// are serialized while distinct ids proceed concurrently. Every returned
// task is a clone; callers can never mutate internal state or observe a
// partial update.
//
// The store is constructed against a pipeline graph so it can derive
// progress from stage weights and decide failure terminality from the
// required/optional policy. Best suited for tests and single-process
// deployments; durable backends implement the same contract.
type InMemoryStore struct {
	graph *pipeline.Graph
	mu    sync.RWMutex
	tasks map[string]*taskEntry
}

type taskEntry struct {
	mu   sync.Mutex
	task *core.Task
}

// Compile-time interface assertion.
var _ core.TaskStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory task store for the graph.
func NewInMemoryStore(graph *pipeline.Graph) *InMemoryStore {
	return &InMemoryStore{graph: graph, tasks: make(map[string]*taskEntry)}
}

// Create allocates a new pending task with every stage pending.
func (s *InMemoryStore) Create(req core.TaskRequest) (*core.Task, error) {
	now := time.Now()
	task := &core.Task{
		ID:       uuid.NewString(),
		Topic:    req.Topic,
		Config:   req.Config,
		Status:   core.TaskPending,
		Stages:   make(map[string]core.StageStatus, len(s.graph.Names())),
		Document: core.Document{Topic: req.Topic},
		Created:  now,
		Updated:  now,
	}
	for _, name := range s.graph.Names() {
		task.Stages[name] = core.StageStatus{State: core.StagePending}
	}

	s.mu.Lock()
	s.tasks[task.ID] = &taskEntry{task: task}
	s.mu.Unlock()

	return task.Clone(), nil
}

// Get returns a snapshot of the task or core.ErrTaskNotFound.
func (s *InMemoryStore) Get(id string) (*core.Task, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task.Clone(), nil
}

// StartStage transitions a stage to running and the task itself from pending
// to running on first dispatch.
func (s *InMemoryStore) StartStage(id, stage string) (*core.Task, error) {
	return s.mutate(id, func(task *core.Task) error {
		status, ok := task.Stages[stage]
		if !ok {
			return fmt.Errorf("unknown stage %q", stage)
		}
		if status.State != core.StagePending {
			return fmt.Errorf("stage %q is %s, not pending", stage, status.State)
		}
		now := time.Now()
		status.State = core.StageRunning
		status.StartedAt = &now
		task.Stages[stage] = status
		if task.Status == core.TaskPending {
			task.Status = core.TaskRunning
		}
		return nil
	})
}

// Apply folds a stage result into the task. Failure of a required stage
// transitions the whole task to failed with that stage's error; failure of
// an optional stage is recorded per stage only.
func (s *InMemoryStore) Apply(id string, res core.StageResult) (*core.Task, error) {
	decl, ok := s.graph.Stage(res.Stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", res.Stage)
	}
	return s.mutate(id, func(task *core.Task) error {
		status := task.Stages[res.Stage]
		now := time.Now()
		status.State = res.State
		status.Units = res.Units
		status.CompletedAt = &now
		if res.Err != nil {
			status.Error = res.Err.Error()
		}
		task.Stages[res.Stage] = status

		if res.State == core.StageDone && res.Output != nil {
			res.Output.MergeInto(&task.Document)
		}
		if res.State == core.StageFailed && !decl.Optional {
			task.Status = core.TaskFailed
			task.Err = stageError(res.Stage, res.Err)
		}
		return nil
	})
}

// Complete transitions a running task to completed with its artifact handle.
func (s *InMemoryStore) Complete(id, artifactID string) (*core.Task, error) {
	return s.mutate(id, func(task *core.Task) error {
		task.Status = core.TaskCompleted
		task.ArtifactID = artifactID
		return nil
	})
}

// Fail transitions a running task to failed with the given stage error.
func (s *InMemoryStore) Fail(id, stage string, err error) (*core.Task, error) {
	return s.mutate(id, func(task *core.Task) error {
		if status, ok := task.Stages[stage]; ok && !status.State.Terminal() {
			now := time.Now()
			status.State = core.StageFailed
			status.CompletedAt = &now
			if err != nil {
				status.Error = err.Error()
			}
			task.Stages[stage] = status
		}
		task.Status = core.TaskFailed
		task.Err = stageError(stage, err)
		return nil
	})
}

// Cancel transitions a running task to failed with a cancellation error.
func (s *InMemoryStore) Cancel(id, reason string) (*core.Task, error) {
	return s.mutate(id, func(task *core.Task) error {
		task.Status = core.TaskFailed
		task.Err = &core.TaskError{Class: core.ClassCancellation, Message: reason}
		return nil
	})
}

// entry looks up the task entry under the map lock.
func (s *InMemoryStore) entry(id string) (*taskEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tasks[id]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	return entry, nil
}

// mutate runs fn under the task's write lock, rejects terminal tasks,
// recomputes derived progress and returns a fresh snapshot.
func (s *InMemoryStore) mutate(id string, fn func(task *core.Task) error) (*core.Task, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.Terminal() {
		return nil, core.ErrTaskTerminal
	}
	if err := fn(entry.task); err != nil {
		return nil, err
	}
	entry.task.Updated = time.Now()
	s.recomputeProgress(entry.task)
	return entry.task.Clone(), nil
}

// recomputeProgress derives progress from completed stage weights. Stage
// states never revert, so the result is monotonically non-decreasing; the
// guard below only defends against a reconfigured graph.
func (s *InMemoryStore) recomputeProgress(task *core.Task) {
	if task.Status == core.TaskCompleted {
		task.Progress = 1.0
		return
	}
	total := s.graph.TotalWeight()
	if total == 0 {
		return
	}
	completed := 0
	for name, status := range task.Stages {
		if status.State == core.StageDone || status.State == core.StageSkipped {
			completed += s.graph.Weight(name)
		}
	}
	progress := float64(completed) / float64(total)
	if progress > task.Progress {
		task.Progress = progress
	}
}

func stageError(stage string, err error) *core.TaskError {
	message := "stage failed"
	class := core.ClassUnknown
	if err != nil {
		message = err.Error()
		class = core.Classify(err)
	}
	return &core.TaskError{Stage: stage, Class: class, Message: message}
}
