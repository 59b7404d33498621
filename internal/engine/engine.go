// Package engine runs an operation graph with bounded concurrency.
//
// One goroutine, the scheduling loop, owns every [operation.Record] of the
// cycle. Runners execute on a fixed-size worker pool and report back over a
// channel; the loop applies status transitions and fires
// onOperationStatusChanged inline, so handlers observe transitions one at a
// time and in the order they happened.
//
// Ready operations are taken lowest graph index first. A FAILURE or BLOCKED
// result marks every transitive dependent BLOCKED without running it; other
// branches of the graph keep going.
package engine

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/operation"
)

// Options configures an Engine.
type Options struct {
	// Parallelism is the maximum number of operations executing at once.
	// Values below 1 default to the number of CPUs.
	Parallelism int
	Hooks       *hooks.Registry
	Logger      *logging.Logger
	// Now is the clock used for stopwatches. Defaults to time.Now.
	Now func() time.Time
}

// Engine executes cycles. It holds no per-cycle state and may run any
// number of cycles one after another.
type Engine struct {
	parallelism int
	hooks       *hooks.Registry
	logger      *logging.Logger
	now         func() time.Time
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		parallelism: opts.Parallelism,
		hooks:       opts.Hooks,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if e.parallelism < 1 {
		e.parallelism = runtime.NumCPU()
	}
	if e.hooks == nil {
		e.hooks = hooks.NewRegistry()
	}
	if e.logger == nil {
		e.logger = logging.NopLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Parallelism returns the worker count.
func (e *Engine) Parallelism() int { return e.parallelism }

// completion is what a worker reports when its runner returns.
type completion struct {
	index  int
	status operation.Status
	err    error
	end    time.Time
}

// RunCycle executes ops and returns the cycle's result.
//
// Infrastructure failures never panic or return early without a result: an
// invalid graph, a failing hook handler, or ctx being canceled is recorded
// as the result's Err with an overall FAILURE. Operations that were not
// started before such a failure stay READY.
func (e *Engine) RunCycle(ctx context.Context, ops []*operation.Operation, cctx *operation.CreateContext) *operation.ExecutionResult {
	result := operation.NewExecutionResult(ops)
	log := e.logger
	if cctx != nil && cctx.Cycle() > 0 {
		log = log.WithCycle(cctx.Cycle())
	}

	g, err := operation.NewGraph(ops)
	if err != nil {
		log.Error("operation graph rejected", "error", err)
		result.Finish(err)
		return result
	}

	event := hooks.ExecuteEvent{Result: result, Context: cctx}
	if err := e.hooks.BeforeExecuteOperations.Promise(ctx, event); err != nil {
		log.Error("hook failed", "hook", hooks.BeforeExecuteOperations, "error", err)
		result.Finish(err)
		return result
	}

	log.Info("executing operations", "count", g.Len(), "parallelism", e.parallelism)
	fatal := e.execute(ctx, g, result, cctx, log)
	result.Finish(fatal)

	// Reporters still run when the cycle was canceled.
	if err := e.hooks.AfterExecuteOperations.Promise(context.WithoutCancel(ctx), event); err != nil {
		log.Error("hook failed", "hook", hooks.AfterExecuteOperations, "error", err)
		if fatal == nil {
			result.Finish(err)
		}
	}

	log.Info("cycle finished", "status", result.Status().String())
	return result
}

func (e *Engine) execute(ctx context.Context, g *operation.Graph, result *operation.ExecutionResult, cctx *operation.CreateContext, log *logging.Logger) error {
	n := g.Len()
	records := make([]*operation.Record, n)
	pending := make([]int, n)
	ready := &operation.IndexHeap{}
	for i := range n {
		records[i], _ = result.Record(g.Operation(i))
		pending[i] = len(g.Dependencies(i))
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	// Buffered for every operation so a worker never waits on the loop.
	done := make(chan completion, n)
	workers := pool.New().WithMaxGoroutines(e.parallelism)
	defer workers.Wait()

	var fatal error
	// notify fires onOperationStatusChanged until a handler fails; after that
	// the cycle is aborting and no further handlers run.
	notify := func(rec *operation.Record) {
		if fatal != nil {
			return
		}
		if err := e.hooks.OnOperationStatusChanged.Call(rec); err != nil {
			log.Error("hook failed", "hook", hooks.OnOperationStatusChanged, "operation", rec.Operation.Name, "error", err)
			fatal = err
		}
	}

	running := 0
	for {
		for fatal == nil && ctx.Err() == nil && running < e.parallelism && ready.Len() > 0 {
			i := heap.Pop(ready).(int)
			rec := records[i]
			if err := rec.Transition(operation.StatusExecuting); err != nil {
				return err
			}
			rec.Start(e.now())
			notify(rec)
			if fatal != nil {
				// The dispatch was refused and the operation never ran. It has
				// left READY, so it ends as FAILURE with an open stopwatch,
				// which keeps it out of the timeline.
				rec.SetError(fatal)
				_ = rec.Transition(operation.StatusFailure)
				break
			}

			running++
			log.Debug("operation started", "operation", rec.Operation.Name)
			workers.Go(func() {
				status, err := e.run(ctx, rec, cctx, log)
				done <- completion{index: i, status: status, err: err, end: e.now()}
			})
		}

		if running == 0 {
			break
		}

		c := <-done
		running--
		rec := records[c.index]
		rec.Stop(c.end)

		status := c.status
		switch {
		case c.err != nil:
			rec.SetError(errors.NewOperationError(rec.Operation.Name, c.err))
			status = operation.StatusFailure
		case !status.IsRunnerResult():
			rec.SetError(errors.NewOperationError(rec.Operation.Name,
				fmt.Errorf("%w: runner returned %q", errors.ErrInvalidTransition, status)))
			status = operation.StatusFailure
		}
		if err := rec.Transition(status); err != nil {
			return err
		}
		log.Debug("operation finished", "operation", rec.Operation.Name,
			"status", status.String(), "duration_ms", rec.Stopwatch().Duration().Milliseconds())
		notify(rec)

		if status.SatisfiesDependents() {
			for _, consumer := range g.Consumers(c.index) {
				pending[consumer]--
				if pending[consumer] == 0 && records[consumer].Status() == operation.StatusReady {
					heap.Push(ready, consumer)
				}
			}
			continue
		}
		e.block(g, records, c.index, notify, log)
	}

	if fatal == nil && ctx.Err() != nil {
		fatal = fmt.Errorf("%w: %w", errors.ErrCycleAborted, ctx.Err())
	}
	return fatal
}

// block marks every READY transitive dependent of failed as BLOCKED, in
// ascending graph order, firing the status hook once for each.
func (e *Engine) block(g *operation.Graph, records []*operation.Record, failed int, notify func(*operation.Record), log *logging.Logger) {
	frontier := &operation.IndexHeap{}
	for _, c := range g.Consumers(failed) {
		heap.Push(frontier, c)
	}
	for frontier.Len() > 0 {
		i := heap.Pop(frontier).(int)
		rec := records[i]
		if rec.Status() != operation.StatusReady {
			continue
		}
		if err := rec.Transition(operation.StatusBlocked); err != nil {
			continue
		}
		log.Info("operation blocked", "operation", rec.Operation.Name, "by", records[failed].Operation.Name)
		notify(rec)
		for _, c := range g.Consumers(i) {
			heap.Push(frontier, c)
		}
	}
}

// run executes one runner on a worker goroutine. A runner panic is reported
// as an error.
func (e *Engine) run(ctx context.Context, rec *operation.Record, cctx *operation.CreateContext, log *logging.Logger) (status operation.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = operation.StatusFailure
			err = fmt.Errorf("%w: panic: %v\n%s", errors.ErrRunnerFailed, r, debug.Stack())
		}
	}()

	op := rec.Operation
	if op.Runner == nil {
		return operation.StatusNoOp, nil
	}
	return op.Runner.Execute(ctx, &operation.RunnerContext{
		Operation: op,
		Context:   cctx,
		Logger:    log.WithOperation(op.Name),
		Output:    rec.OutputWriter(),
	})
}
