package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/logging"
	"github.com/hupe1980/reportmesh/pipeline"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// Policy is the retry policy applied to every unit.
	Policy RetryPolicy
	// UnitTimeout bounds the wall-clock duration of a single gateway call.
	// Exceeding it counts as a transient failure. Zero disables the timeout.
	UnitTimeout time.Duration
	// Logger receives structured execution logs.
	Logger logging.Logger
}

// Executor runs stages against the agent gateway. A single Executor is shared
// by all tasks of an orchestrator so the semaphore budget is global.
// Safe for concurrent use.
type Executor struct {
	invoker     core.Invoker
	budget      *semaphore.Weighted
	policy      RetryPolicy
	unitTimeout time.Duration
	logger      logging.Logger
}

// New constructs an Executor sharing the given concurrency budget.
func New(invoker core.Invoker, budget *semaphore.Weighted, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Policy:      DefaultRetryPolicy(),
		UnitTimeout: 60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		invoker:     invoker,
		budget:      budget,
		policy:      opts.Policy.normalized(),
		unitTimeout: opts.UnitTimeout,
		logger:      opts.Logger,
	}
}

// RunStage executes one stage's fan-out set for the given task snapshot and
// returns the aggregated result.
//
// Required stages fail fast: the first unit that exhausts retries (or fails
// fatally) cancels the stage's remaining in-flight units and the stage fails
// with that error. Optional stages collect every unit outcome; terminal unit
// failures are recorded in the telemetry and excluded from the merge, and the
// stage only fails if no unit succeeded.
func (e *Executor) RunStage(ctx context.Context, stage *pipeline.Stage, task *core.Task) core.StageResult {
	log := e.logger
	if stage.Skip != nil && stage.Skip(task) {
		log.Debug("stage skipped by configuration stage=%s task_id=%s", stage.Name, task.ID)
		return core.StageResult{Stage: stage.Name, State: core.StageSkipped}
	}

	units, err := stage.Expand(task)
	if err != nil {
		return core.StageResult{Stage: stage.Name, State: core.StageFailed, Err: err}
	}

	telemetry := make([]core.UnitResult, len(units))
	outs := make([]core.AgentResponse, len(units))
	ok := make([]bool, len(units))

	if stage.Optional {
		var wg sync.WaitGroup
		for i := range units {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, attempts, uerr := e.runUnit(ctx, units[i])
				telemetry[i] = core.UnitResult{Index: units[i].Index, Attempts: attempts}
				if uerr != nil {
					telemetry[i].Error = uerr.Error()
					log.Warn("optional unit failed stage=%s unit=%d err=%v", stage.Name, units[i].Index, uerr)
					return
				}
				outs[i] = resp
				ok[i] = true
			}(i)
		}
		wg.Wait()
		return e.finishOptional(stage, task, units, outs, ok, telemetry)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range units {
		i := i
		g.Go(func() error {
			resp, attempts, uerr := e.runUnit(gctx, units[i])
			telemetry[i] = core.UnitResult{Index: units[i].Index, Attempts: attempts}
			if uerr != nil {
				telemetry[i].Error = uerr.Error()
				return uerr
			}
			outs[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.StageResult{Stage: stage.Name, State: core.StageFailed, Err: err, Units: telemetry}
	}

	output, err := stage.Merge(task, outs)
	if err != nil {
		return core.StageResult{Stage: stage.Name, State: core.StageFailed, Err: err, Units: telemetry}
	}
	return core.StageResult{Stage: stage.Name, State: core.StageDone, Output: output, Units: telemetry}
}

// finishOptional merges the successful subset of an optional stage's units.
func (e *Executor) finishOptional(
	stage *pipeline.Stage,
	task *core.Task,
	units []core.WorkUnit,
	outs []core.AgentResponse,
	ok []bool,
	telemetry []core.UnitResult,
) core.StageResult {
	succeeded := make([]core.AgentResponse, 0, len(units))
	var firstErr error
	for i := range units {
		if ok[i] {
			succeeded = append(succeeded, outs[i])
		} else if firstErr == nil && telemetry[i].Error != "" {
			firstErr = errors.New(telemetry[i].Error)
		}
	}
	if len(units) > 0 && len(succeeded) == 0 {
		return core.StageResult{Stage: stage.Name, State: core.StageFailed, Err: firstErr, Units: telemetry}
	}
	output, err := stage.Merge(task, succeeded)
	if err != nil {
		return core.StageResult{Stage: stage.Name, State: core.StageFailed, Err: err, Units: telemetry}
	}
	return core.StageResult{Stage: stage.Name, State: core.StageDone, Output: output, Units: telemetry}
}

// runUnit drives one work unit through the acquire/invoke/classify/backoff
// loop. The budget slot is held only while the gateway call is in flight.
func (e *Executor) runUnit(ctx context.Context, unit core.WorkUnit) (core.AgentResponse, int, error) {
	var resp core.AgentResponse
	attempts := 0

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		attempts = attempt

		if err := e.budget.Acquire(ctx, 1); err != nil {
			return resp, attempts, core.Cancellation("abandoned while waiting for a concurrency slot")
		}

		unitCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.unitTimeout > 0 {
			unitCtx, cancel = context.WithTimeout(ctx, e.unitTimeout)
		}
		start := time.Now()
		out, err := e.invoker.Invoke(unitCtx, unit.Role, unit.Request)
		cancel()
		e.budget.Release(1)

		if err == nil {
			e.logger.Debug("unit succeeded stage=%s unit=%d attempt=%d duration=%s",
				unit.Stage, unit.Index, attempt, time.Since(start))
			return out, attempts, nil
		}

		err = e.normalize(ctx, err)
		if core.IsCancellation(err) {
			return resp, attempts, err
		}
		if !e.policy.Retryable(err) || attempt == e.policy.MaxAttempts {
			return resp, attempts, err
		}

		delay := e.policy.Delay(attempt)
		e.logger.Debug("unit retrying stage=%s unit=%d attempt=%d delay=%s err=%v",
			unit.Stage, unit.Index, attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return resp, attempts, core.Cancellation("abandoned during retry backoff")
		}
	}

	// Unreachable: the loop always returns.
	return resp, attempts, nil
}

// normalize folds context-level outcomes into the error taxonomy: a per-unit
// deadline is a transient timeout, a cancelled parent is a cancellation.
func (e *Executor) normalize(parent context.Context, err error) error {
	if parent.Err() != nil {
		return core.Cancellation("unit interrupted")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transientf("unit timed out after %s", e.unitTimeout)
	}
	return err
}
