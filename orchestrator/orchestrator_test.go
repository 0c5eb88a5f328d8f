package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/executor"
	"github.com/hupe1980/reportmesh/internal/testutil"
	"github.com/hupe1980/reportmesh/pipeline"
)

func newOrchestrator(inv core.Invoker) *Orchestrator {
	return New(pipeline.ReportGraph(), inv, func(o *Options) {
		o.Retry = executor.RetryPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Retryable:    core.IsTransient,
		}
		o.Config.UnitTimeout = 2 * time.Second
	})
}

// waitTerminal polls task status until the pipeline reaches completed or
// failed. Polling is the lossless way to observe terminal state in tests.
func waitTerminal(t *testing.T, o *Orchestrator, id string) *core.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := o.Status(id)
		require.NoError(t, err)
		if task.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state in time")
	return nil
}

func submit(t *testing.T, o *Orchestrator, cfg core.TaskConfig) string {
	t.Helper()
	id, err := o.Submit(context.Background(), core.TaskRequest{Topic: "edge computing", Config: cfg})
	require.NoError(t, err)
	return id
}

func TestSubmit_ValidationErrors(t *testing.T) {
	o := newOrchestrator(testutil.NewStubInvoker())

	_, err := o.Submit(context.Background(), core.TaskRequest{})
	assert.True(t, core.IsValidation(err))

	_, err = o.Submit(context.Background(), core.TaskRequest{
		Topic:  "x",
		Config: core.TaskConfig{Template: "glossy"},
	})
	assert.True(t, core.IsValidation(err))

	_, err = o.Submit(context.Background(), core.TaskRequest{
		Topic:  "x",
		Config: core.TaskConfig{MaxSections: -1},
	})
	assert.True(t, core.IsValidation(err))
}

func TestRun_FullSuccessWithImages(t *testing.T) {
	inv := testutil.NewStubInvoker()
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: true})
	task := waitTerminal(t, o, id)

	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.InDelta(t, 1.0, task.Progress, 1e-9)
	assert.Nil(t, task.Err)
	require.NotNil(t, task.Document.Outline)
	assert.Len(t, task.Document.Blocks, len(task.Document.Outline.Sections))
	assert.NotEmpty(t, task.Document.Images)

	// Blocks are ordered by outline position regardless of completion order.
	for i, block := range task.Document.Blocks {
		assert.Equal(t, i, block.Order)
	}

	artifact, err := o.Artifact(id)
	require.NoError(t, err)
	assert.Contains(t, string(artifact), "# Report: edge computing")
}

func TestRun_StageDispatchFollowsDependencies(t *testing.T) {
	inv := testutil.NewStubInvoker()
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: true})
	waitTerminal(t, o, id)

	calls := inv.Calls()
	firstSeen := make(map[core.Role]int)
	lastSeen := make(map[core.Role]int)
	for i, c := range calls {
		if _, ok := firstSeen[c.Role]; !ok {
			firstSeen[c.Role] = i
		}
		lastSeen[c.Role] = i
	}

	assert.Less(t, lastSeen[core.RoleResearch], firstSeen[core.RoleStructure])
	assert.Less(t, lastSeen[core.RoleStructure], firstSeen[core.RoleWrite])
	assert.Less(t, lastSeen[core.RoleStructure], firstSeen[core.RoleImage])
}

func TestRun_RequiredUnitFailureFailsTask(t *testing.T) {
	inv := testutil.NewStubInvoker().
		FailUnit(core.RoleWrite, 1, core.Fatalf("section rejected"))
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: false})
	task := waitTerminal(t, o, id)

	assert.Equal(t, core.TaskFailed, task.Status)
	require.NotNil(t, task.Err)
	assert.Equal(t, pipeline.StageWrite, task.Err.Stage)
	assert.Equal(t, core.ClassFatal, task.Err.Class)

	_, err := o.Artifact(id)
	assert.Error(t, err)
}

func TestRun_OptionalStageFailureStillCompletes(t *testing.T) {
	inv := testutil.NewStubInvoker().
		FailRole(core.RoleImage, core.Fatalf("image backend down"))
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: true})
	task := waitTerminal(t, o, id)

	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, core.StageFailed, task.Stages[pipeline.StageImage].State)
	assert.Empty(t, task.Document.Images)

	artifact, err := o.Artifact(id)
	require.NoError(t, err)
	assert.NotContains(t, string(artifact), "![")
}

func TestRun_ImagesDisabledSkipsStage(t *testing.T) {
	inv := testutil.NewStubInvoker()
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: false})
	task := waitTerminal(t, o, id)

	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, core.StageSkipped, task.Stages[pipeline.StageImage].State)
	assert.Zero(t, inv.CallCount(core.RoleImage))
}

func TestRun_BudgetCapsUnitsAcrossConcurrentStages(t *testing.T) {
	// Write and image run concurrently after structure; with a budget of 2
	// their combined in-flight units must never exceed it.
	inv := testutil.NewStubInvoker()
	slow := func(role core.Role) {
		inv.Script(role, func(_ context.Context, req core.AgentRequest) (core.AgentResponse, error) {
			time.Sleep(15 * time.Millisecond)
			title := "Section"
			if req.Section != nil {
				title = req.Section.Title
			}
			if role == core.RoleImage {
				return core.AgentResponse{Image: &core.ImageRef{
					Section: title, URL: "https://images.example/i.png", Order: req.SectionIndex,
				}}, nil
			}
			return core.AgentResponse{Block: &core.ContentBlock{
				Section: title, Markdown: "text", Order: req.SectionIndex,
			}}, nil
		})
	}
	slow(core.RoleWrite)
	slow(core.RoleImage)

	o := New(pipeline.ReportGraph(), inv, func(opts *Options) {
		opts.Config.ConcurrencyBudget = 2
		opts.Config.UnitTimeout = 2 * time.Second
	})

	id := submit(t, o, core.TaskConfig{IncludeImages: true})
	task := waitTerminal(t, o, id)

	require.Equal(t, core.TaskCompleted, task.Status)
	assert.LessOrEqual(t, inv.MaxConcurrent(), 2)
}

func TestCancel_StopsDispatchAndFailsTask(t *testing.T) {
	inv := testutil.NewStubInvoker()
	inv.Block = make(chan struct{})
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{IncludeImages: true})

	// Wait until research units are in flight.
	deadline := time.Now().Add(2 * time.Second)
	for inv.CallCount(core.RoleResearch) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NotZero(t, inv.CallCount(core.RoleResearch))

	require.NoError(t, o.Cancel(id))
	close(inv.Block)

	task := waitTerminal(t, o, id)
	assert.Equal(t, core.TaskFailed, task.Status)
	require.NotNil(t, task.Err)
	assert.Equal(t, core.ClassCancellation, task.Err.Class)

	// No downstream stage is dispatched after cancellation.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, inv.CallCount(core.RoleStructure))
}

func TestCancel_TerminalTaskReturnsErrTaskTerminal(t *testing.T) {
	o := newOrchestrator(testutil.NewStubInvoker())

	id := submit(t, o, core.TaskConfig{})
	waitTerminal(t, o, id)

	err := o.Cancel(id)
	assert.ErrorIs(t, err, core.ErrTaskTerminal)
}

func TestCancel_UnknownTask(t *testing.T) {
	o := newOrchestrator(testutil.NewStubInvoker())

	err := o.Cancel("missing")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestSubscribe_ReceivesTerminalEvent(t *testing.T) {
	o := newOrchestrator(testutil.NewStubInvoker())

	events, unsubscribe := o.Subscribe()
	defer unsubscribe()

	id := submit(t, o, core.TaskConfig{})
	waitTerminal(t, o, id)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.TaskID != id {
				continue
			}
			if ev.Status == core.TaskCompleted {
				assert.InDelta(t, 1.0, ev.Progress, 1e-9)
				return
			}
		case <-deadline:
			t.Fatal("never observed the terminal progress event")
		}
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	o := newOrchestrator(testutil.NewStubInvoker())

	events, unsubscribe := o.Subscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
}

func TestArtifact_PendingTaskHasNoArtifact(t *testing.T) {
	inv := testutil.NewStubInvoker()
	inv.Block = make(chan struct{})
	o := newOrchestrator(inv)

	id := submit(t, o, core.TaskConfig{})

	_, err := o.Artifact(id)
	assert.Error(t, err)

	close(inv.Block)
	waitTerminal(t, o, id)
}
