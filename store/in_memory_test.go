package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/pipeline"
)

func newStore(t *testing.T) (*InMemoryStore, *core.Task) {
	t.Helper()
	s := NewInMemoryStore(pipeline.ReportGraph())
	task, err := s.Create(core.TaskRequest{
		Topic:  "edge computing",
		Config: core.TaskConfig{IncludeImages: true},
	})
	require.NoError(t, err)
	return s, task
}

func doneResult(stage string, output core.StageOutput) core.StageResult {
	return core.StageResult{Stage: stage, State: core.StageDone, Output: output}
}

func TestCreate_AllStagesPending(t *testing.T) {
	_, task := newStore(t)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, core.TaskPending, task.Status)
	assert.Equal(t, "edge computing", task.Document.Topic)
	assert.Zero(t, task.Progress)
	require.Len(t, task.Stages, 4)
	for name, status := range task.Stages {
		assert.Equal(t, core.StagePending, status.State, name)
	}
}

func TestGet_UnknownTask(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Get("missing")

	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestGet_SnapshotIsolation(t *testing.T) {
	s, task := newStore(t)

	snap, err := s.Get(task.ID)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the store.
	snap.Status = core.TaskFailed
	snap.Stages[pipeline.StageResearch] = core.StageStatus{State: core.StageFailed}
	snap.Document.Findings = append(snap.Document.Findings, core.Finding{Question: "q"})

	fresh, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, fresh.Status)
	assert.Equal(t, core.StagePending, fresh.Stages[pipeline.StageResearch].State)
	assert.Empty(t, fresh.Document.Findings)
}

func TestStartStage_TransitionsTaskToRunning(t *testing.T) {
	s, task := newStore(t)

	updated, err := s.StartStage(task.ID, pipeline.StageResearch)

	require.NoError(t, err)
	assert.Equal(t, core.TaskRunning, updated.Status)
	assert.Equal(t, core.StageRunning, updated.Stages[pipeline.StageResearch].State)
	assert.NotNil(t, updated.Stages[pipeline.StageResearch].StartedAt)
}

func TestStartStage_RejectsNonPendingStage(t *testing.T) {
	s, task := newStore(t)

	_, err := s.StartStage(task.ID, pipeline.StageResearch)
	require.NoError(t, err)
	_, err = s.StartStage(task.ID, pipeline.StageResearch)

	assert.Error(t, err)
}

func TestApply_DoneMergesOutputAndAdvancesProgress(t *testing.T) {
	s, task := newStore(t)
	_, err := s.StartStage(task.ID, pipeline.StageResearch)
	require.NoError(t, err)

	updated, err := s.Apply(task.ID, doneResult(pipeline.StageResearch, core.FindingsOutput{
		Findings: []core.Finding{{Question: "q1", Summary: "s1"}},
	}))

	require.NoError(t, err)
	assert.Equal(t, core.StageDone, updated.Stages[pipeline.StageResearch].State)
	assert.NotNil(t, updated.Stages[pipeline.StageResearch].CompletedAt)
	assert.Len(t, updated.Document.Findings, 1)
	assert.InDelta(t, 0.25, updated.Progress, 1e-9)
}

func TestApply_ProgressIsMonotonic(t *testing.T) {
	s, task := newStore(t)

	last := 0.0
	steps := []core.StageResult{
		doneResult(pipeline.StageResearch, nil),
		doneResult(pipeline.StageStructure, nil),
		{Stage: pipeline.StageImage, State: core.StageSkipped},
		doneResult(pipeline.StageWrite, nil),
	}
	for _, res := range steps {
		updated, err := s.Apply(task.ID, res)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, updated.Progress, last)
		last = updated.Progress
	}
	assert.InDelta(t, 1.0, last, 1e-9)
}

func TestApply_RequiredStageFailureFailsTask(t *testing.T) {
	s, task := newStore(t)

	updated, err := s.Apply(task.ID, core.StageResult{
		Stage: pipeline.StageWrite,
		State: core.StageFailed,
		Err:   core.Fatalf("section rejected"),
	})

	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, updated.Status)
	require.NotNil(t, updated.Err)
	assert.Equal(t, pipeline.StageWrite, updated.Err.Stage)
	assert.Equal(t, core.ClassFatal, updated.Err.Class)
}

func TestApply_OptionalStageFailureKeepsTaskRunning(t *testing.T) {
	s, task := newStore(t)
	_, err := s.StartStage(task.ID, pipeline.StageImage)
	require.NoError(t, err)

	updated, err := s.Apply(task.ID, core.StageResult{
		Stage: pipeline.StageImage,
		State: core.StageFailed,
		Err:   core.Transientf("image backend down"),
	})

	require.NoError(t, err)
	assert.Equal(t, core.TaskRunning, updated.Status)
	assert.Nil(t, updated.Err)
	assert.Equal(t, core.StageFailed, updated.Stages[pipeline.StageImage].State)
}

func TestApply_SkippedStageCountsTowardProgress(t *testing.T) {
	s, task := newStore(t)

	updated, err := s.Apply(task.ID, core.StageResult{
		Stage: pipeline.StageImage,
		State: core.StageSkipped,
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.2, updated.Progress, 1e-9)
}

func TestComplete_SetsArtifactAndFullProgress(t *testing.T) {
	s, task := newStore(t)

	updated, err := s.Complete(task.ID, "artifact-1")

	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, updated.Status)
	assert.Equal(t, "artifact-1", updated.ArtifactID)
	assert.InDelta(t, 1.0, updated.Progress, 1e-9)
}

func TestTerminalTaskRejectsFurtherMutation(t *testing.T) {
	s, task := newStore(t)
	_, err := s.Fail(task.ID, pipeline.StageWrite, core.Fatalf("boom"))
	require.NoError(t, err)

	_, err = s.StartStage(task.ID, pipeline.StageImage)
	assert.ErrorIs(t, err, core.ErrTaskTerminal)

	_, err = s.Apply(task.ID, doneResult(pipeline.StageImage, nil))
	assert.ErrorIs(t, err, core.ErrTaskTerminal)

	_, err = s.Complete(task.ID, "late")
	assert.ErrorIs(t, err, core.ErrTaskTerminal)
}

func TestCancel_MarksTaskFailedWithCancellation(t *testing.T) {
	s, task := newStore(t)

	updated, err := s.Cancel(task.ID, "cancelled by user")

	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, updated.Status)
	require.NotNil(t, updated.Err)
	assert.Equal(t, core.ClassCancellation, updated.Err.Class)
	assert.Equal(t, "cancelled by user", updated.Err.Message)
}

func TestFail_RecordsStageError(t *testing.T) {
	s, task := newStore(t)
	_, err := s.StartStage(task.ID, pipeline.StageWrite)
	require.NoError(t, err)

	updated, err := s.Fail(task.ID, pipeline.StageWrite, core.Transientf("exhausted retries"))

	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, updated.Status)
	assert.Equal(t, core.StageFailed, updated.Stages[pipeline.StageWrite].State)
	assert.Contains(t, updated.Stages[pipeline.StageWrite].Error, "exhausted retries")
}
