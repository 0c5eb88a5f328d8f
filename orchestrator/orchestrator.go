package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/reportmesh/artifact"
	"github.com/hupe1980/reportmesh/assemble"
	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/executor"
	"github.com/hupe1980/reportmesh/logging"
	"github.com/hupe1980/reportmesh/pipeline"
	"github.com/hupe1980/reportmesh/store"
)

// Config defines tuning parameters for the Orchestrator's operational
// behavior. Additional concerns (stores, retry policy, sinks) are configured
// via functional options rather than expanding this struct.
type Config struct {
	// ConcurrencyBudget caps simultaneously in-flight gateway calls across
	// all tasks. Enforced by a counting semaphore shared process-wide.
	ConcurrencyBudget int

	// UnitTimeout bounds the wall-clock duration of one gateway call.
	// Exceeding it is treated as a transient failure.
	UnitTimeout time.Duration

	// EventBufferSize sets the channel buffer for progress subscribers.
	// Slow subscribers drop events once their buffer fills; the orchestrator
	// never blocks on notification.
	EventBufferSize int
}

// DefaultConfig provides production-ready default configuration values:
// a small concurrency budget safe for rate-limited collaborator APIs, a
// generous per-call timeout for slow generation backends, and a buffer large
// enough for bursty stage completions.
var DefaultConfig = Config{
	ConcurrencyBudget: 4,
	UnitTimeout:       60 * time.Second,
	EventBufferSize:   64,
}

// Options configures an Orchestrator instance using the functional options
// pattern. All services have in-memory defaults suitable for development and
// testing; production deployments typically supply durable implementations.
type Options struct {
	// Config contains operational parameters.
	Config Config

	// Retry is the per-unit retry policy applied by the stage executor.
	Retry executor.RetryPolicy

	// Store holds authoritative task state. Defaults to the in-memory
	// implementation if not provided.
	Store core.TaskStore

	// Artifacts stores final document artifacts. Defaults to in-memory.
	Artifacts core.ArtifactStore

	// Assembler produces the final artifact from the merged document.
	// Defaults to the Markdown assembler writing into Artifacts.
	Assembler core.Assembler

	// Sink receives every progress event in addition to channel subscribers.
	Sink core.ProgressSink

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
}

// Orchestrator coordinates the complete lifecycle of report generation
// tasks. Public methods are safe for concurrent use.
type Orchestrator struct {
	graph     *pipeline.Graph
	taskStore core.TaskStore
	artifacts core.ArtifactStore
	assembler core.Assembler
	exec      *executor.Executor
	config    Config
	sink      core.ProgressSink
	logger    logging.Logger

	mu     sync.RWMutex
	active map[string]*taskRun

	subMu   sync.RWMutex
	subs    map[int]chan core.ProgressEvent
	nextSub int
}

// taskRun tracks the cancellation handles of one running task: the run-wide
// cancel for hard stops plus per-stage cancels so optional work can be
// abandoned while required work is left to finish or time out.
type taskRun struct {
	cancel context.CancelFunc

	mu           sync.Mutex
	stageCancels map[string]context.CancelFunc
}

func (r *taskRun) addStage(name string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageCancels[name] = cancel
}

func (r *taskRun) removeStage(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.stageCancels[name]; ok {
		cancel()
		delete(r.stageCancels, name)
	}
}

// abandonOptional cancels the contexts of in-flight optional stages.
// Required stages are deliberately left running; they complete or hit their
// unit timeout.
func (r *taskRun) abandonOptional(graph *pipeline.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cancel := range r.stageCancels {
		if st, ok := graph.Stage(name); ok && st.Optional {
			cancel()
		}
	}
}

// New creates an Orchestrator for the given pipeline graph and agent
// gateway. The concurrency budget semaphore is created here and shared by
// every task for the orchestrator's lifetime.
func New(graph *pipeline.Graph, invoker core.Invoker, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config: DefaultConfig,
		Retry:  executor.DefaultRetryPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.ConcurrencyBudget <= 0 {
		opts.Config.ConcurrencyBudget = DefaultConfig.ConcurrencyBudget
	}
	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore(graph)
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.Assembler == nil {
		opts.Assembler = assemble.NewMarkdownAssembler(opts.Artifacts, func(o *assemble.Options) {
			o.Logger = opts.Logger
		})
	}

	budget := semaphore.NewWeighted(int64(opts.Config.ConcurrencyBudget))
	exec := executor.New(invoker, budget, func(o *executor.Options) {
		o.Policy = opts.Retry
		o.UnitTimeout = opts.Config.UnitTimeout
		o.Logger = opts.Logger
	})

	return &Orchestrator{
		graph:     graph,
		taskStore: opts.Store,
		artifacts: opts.Artifacts,
		assembler: opts.Assembler,
		exec:      exec,
		config:    opts.Config,
		sink:      opts.Sink,
		logger:    opts.Logger,
		active:    make(map[string]*taskRun),
		subs:      make(map[int]chan core.ProgressEvent),
	}
}

// Submit validates the request, creates a trackable task and starts its
// pipeline run. It returns immediately with the task id; callers follow
// progress via Status, Subscribe or a configured sink.
//
// The run is detached from the caller's context: a submit RPC returning does
// not abort generation. Use Cancel to stop a running task.
func (o *Orchestrator) Submit(_ context.Context, req core.TaskRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	task, err := o.taskStore.Create(req)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &taskRun{cancel: cancel, stageCancels: make(map[string]context.CancelFunc)}

	o.mu.Lock()
	o.active[task.ID] = run
	o.mu.Unlock()

	o.logger.Info("task submitted task_id=%s topic=%q", task.ID, task.Topic)
	o.emit(task, "", "")

	go o.run(runCtx, run, task.ID)

	return task.ID, nil
}

// Status returns a fully consistent snapshot of the task.
func (o *Orchestrator) Status(id string) (*core.Task, error) {
	return o.taskStore.Get(id)
}

// Artifact returns the final document bytes of a completed task.
func (o *Orchestrator) Artifact(id string) ([]byte, error) {
	task, err := o.taskStore.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Status != core.TaskCompleted {
		return nil, fmt.Errorf("task %s is %s, artifact only exists for completed tasks", id, task.Status)
	}
	return o.artifacts.Get(id, task.ArtifactID)
}

// Cancel stops a running task: the task transitions to failed with a
// cancellation error, no further stages are dispatched, in-flight optional
// units are abandoned immediately and in-flight required units are left to
// complete or hit their timeout. Cancelling a terminal task returns
// core.ErrTaskTerminal.
func (o *Orchestrator) Cancel(id string) error {
	snap, err := o.taskStore.Cancel(id, "cancelled by caller")
	if err != nil {
		return err
	}

	o.mu.RLock()
	run, ok := o.active[id]
	o.mu.RUnlock()
	if ok {
		run.abandonOptional(o.graph)
	}

	o.logger.Info("task cancelled task_id=%s", id)
	o.emit(snap, "", "")
	return nil
}

// Subscribe returns a channel of progress events plus a cancel function.
// Events are dropped for subscribers whose buffer is full; polling Status
// remains the lossless source of truth.
func (o *Orchestrator) Subscribe() (<-chan core.ProgressEvent, func()) {
	ch := make(chan core.ProgressEvent, o.config.EventBufferSize)

	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if existing, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// run drives one task from first dispatch to terminal state. It is the only
// goroutine mutating the task, so re-evaluating readiness after every state
// change is race-free by construction.
func (o *Orchestrator) run(ctx context.Context, run *taskRun, id string) {
	defer func() {
		run.cancel()
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
	}()

	type outcome struct {
		stage *pipeline.Stage
		res   core.StageResult
	}
	results := make(chan outcome)
	inFlight := 0

	for {
		snap, err := o.taskStore.Get(id)
		if err != nil {
			o.logger.Error("task disappeared mid-run task_id=%s err=%v", id, err)
			return
		}

		if !snap.Terminal() {
			for _, st := range o.graph.Ready(snap.StageStates()) {
				started, err := o.taskStore.StartStage(id, st.Name)
				if err != nil {
					if errors.Is(err, core.ErrTaskTerminal) {
						break
					}
					o.logger.Warn("failed to start stage task_id=%s stage=%s err=%v", id, st.Name, err)
					continue
				}
				o.emit(started, st.Name, core.StageRunning)

				stageCtx, stageCancel := context.WithCancel(ctx)
				run.addStage(st.Name, stageCancel)
				inFlight++
				go func(st *pipeline.Stage, task *core.Task) {
					results <- outcome{stage: st, res: o.exec.RunStage(stageCtx, st, task)}
				}(st, started)
			}
		}

		if inFlight == 0 {
			break
		}

		out := <-results
		inFlight--
		run.removeStage(out.stage.Name)

		updated, err := o.taskStore.Apply(id, out.res)
		if err != nil {
			// Late result for a task that already failed or was cancelled.
			if errors.Is(err, core.ErrTaskTerminal) {
				continue
			}
			o.logger.Error("failed to apply stage result task_id=%s stage=%s err=%v", id, out.res.Stage, err)
			continue
		}
		o.emit(updated, out.res.Stage, out.res.State)

		if updated.Status == core.TaskFailed {
			o.logger.Warn("task failed task_id=%s stage=%s err=%v", id, out.res.Stage, out.res.Err)
			run.abandonOptional(o.graph)
		}
	}

	o.finish(ctx, id)
}

// finish resolves the terminal state once the graph is drained: assembles
// the artifact on success, or converts a blocked pipeline into a
// deterministic failure.
func (o *Orchestrator) finish(ctx context.Context, id string) {
	snap, err := o.taskStore.Get(id)
	if err != nil {
		o.logger.Error("task disappeared before finish task_id=%s err=%v", id, err)
		return
	}
	if snap.Terminal() {
		return
	}

	states := snap.StageStates()
	if blocked := o.graph.Blocked(states); len(blocked) > 0 {
		st := blocked[0]
		dep := failedDependency(st, states)
		failed, err := o.taskStore.Fail(id, st.Name, core.Fatalf("blocked by failed dependency %q", dep))
		if err == nil {
			o.emit(failed, st.Name, core.StageFailed)
		}
		return
	}
	if !o.graph.AllRequiredDone(states) {
		failed, err := o.taskStore.Fail(id, "", fmt.Errorf("pipeline drained with unfinished required stages"))
		if err == nil {
			o.emit(failed, "", "")
		}
		return
	}

	artifactID, err := o.assembler.Assemble(ctx, id, snap.Document)
	if err != nil {
		failed, ferr := o.taskStore.Fail(id, "assemble", err)
		if ferr == nil {
			o.emit(failed, "assemble", core.StageFailed)
		}
		return
	}

	done, err := o.taskStore.Complete(id, artifactID)
	if err != nil {
		// A concurrent Cancel won the race; the artifact stays orphaned in
		// the store and is reaped by the external retention policy.
		o.logger.Warn("could not complete task task_id=%s err=%v", id, err)
		return
	}
	o.logger.Info("task completed task_id=%s artifact_id=%s", id, artifactID)
	o.emit(done, "", "")
}

// emit fans a progress event out to the sink and all subscribers without
// ever blocking the pipeline.
func (o *Orchestrator) emit(task *core.Task, stage string, state core.StageState) {
	ev := core.ProgressEvent{
		TaskID:    task.ID,
		Stage:     stage,
		State:     state,
		Status:    task.Status,
		Progress:  task.Progress,
		Timestamp: time.Now(),
	}
	if o.sink != nil {
		o.sink.Publish(ev)
	}

	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full: drop rather than stall the pipeline.
		}
	}
}

// validTemplates is the closed set of supported template kinds.
var validTemplates = map[string]bool{
	"":         true,
	"standard": true,
	"academic": true,
	"business": true,
}

func validateRequest(req core.TaskRequest) error {
	if req.Topic == "" {
		return core.Validationf("topic must not be empty")
	}
	if req.Config.MaxSections < 0 {
		return core.Validationf("max_sections must not be negative")
	}
	if !validTemplates[req.Config.Template] {
		return core.Validationf("unknown template %q", req.Config.Template)
	}
	return nil
}

func failedDependency(st *pipeline.Stage, states map[string]core.StageState) string {
	for _, dep := range st.DependsOn {
		if states[dep] == core.StageFailed {
			return dep
		}
	}
	return ""
}
