// Package orchestrator drives one command invocation: it applies the
// plugins to a fresh hook registry, builds the create-operations context of
// every cycle, runs the operation graph on the engine, records telemetry and,
// in watch mode, waits for changes between cycles.
package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/engine"
	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/telemetry"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// ChangeSource reports which projects changed between watch-mode cycles.
type ChangeSource interface {
	// Wait blocks until at least one project changed or ctx is done.
	Wait(ctx context.Context) ([]*workspace.Project, error)
}

// Analyzer is the change analyzer the orchestrator resets between cycles.
type Analyzer interface {
	operation.ChangeAnalyzer
	// Forget drops cached state of projects so it is recomputed.
	Forget(projects ...*workspace.Project)
}

// Options configures an Orchestrator.
type Options struct {
	Workspace *workspace.Workspace
	// Phases are the requested phase names. Empty selects every phase.
	Phases []string
	// To selects projects with their dependencies, Only selects projects alone.
	// Both empty selects every project.
	To   []string
	Only []string

	Parallelism      int
	Incremental      bool
	Clean            bool
	CustomParameters map[string]string

	// Watch repeats cycles whenever Changes reports a change.
	Watch   bool
	Changes ChangeSource

	Analyzer   Analyzer
	BuildCache operation.BuildCache
	Plugins    []hooks.Plugin

	// Telemetry persists the record of every cycle. Nil disables saving;
	// the beforeLog hook fires regardless.
	Telemetry *telemetry.Store
	// Name identifies the command in telemetry records.
	Name string

	Logger *logging.Logger
	Now    func() time.Time
}

// Orchestrator runs the cycles of one command invocation.
type Orchestrator struct {
	opts     Options
	hooks    *hooks.Registry
	engine   *engine.Engine
	logger   *logging.Logger
	now      func() time.Time
	original []*workspace.Phase
	phases   []*workspace.Phase
	projects []*workspace.Project
}

// New resolves the phase and project selection and applies the plugins.
func New(opts Options) (*Orchestrator, error) {
	if opts.Workspace == nil {
		return nil, errors.NewConfigurationError("no workspace loaded", errors.ErrInvalidInput)
	}
	if opts.Watch && opts.Changes == nil {
		return nil, errors.NewConfigurationError("watch mode needs a change source", errors.ErrInvalidInput)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	original, err := opts.Workspace.ResolvePhases(opts.Phases)
	if err != nil {
		return nil, err
	}
	phases, err := opts.Workspace.ExpandPhases(opts.Phases)
	if err != nil {
		return nil, err
	}
	if len(opts.Phases) == 0 {
		original = phases
	}
	projects, err := opts.Workspace.SelectProjects(opts.To, opts.Only)
	if err != nil {
		return nil, err
	}

	registry := hooks.NewRegistry()
	if err := registry.Apply(opts.Plugins...); err != nil {
		return nil, err
	}

	return &Orchestrator{
		opts:  opts,
		hooks: registry,
		engine: engine.New(engine.Options{
			Parallelism: opts.Parallelism,
			Hooks:       registry,
			Logger:      logger,
			Now:         now,
		}),
		logger:   logger,
		now:      now,
		original: original,
		phases:   phases,
		projects: projects,
	}, nil
}

// Hooks returns the registry the plugins were applied to.
func (o *Orchestrator) Hooks() *hooks.Registry { return o.hooks }

// Projects returns the selected projects.
func (o *Orchestrator) Projects() []*workspace.Project {
	return append([]*workspace.Project(nil), o.projects...)
}

// Phases returns the selected phases, including the phases the requested
// ones depend on.
func (o *Orchestrator) Phases() []*workspace.Phase {
	return append([]*workspace.Phase(nil), o.phases...)
}

// Parallelism returns the engine's concurrency bound.
func (o *Orchestrator) Parallelism() int { return o.engine.Parallelism() }

// Run executes the first cycle and, in watch mode, a new cycle for every
// batch of changes until ctx is canceled. It returns the result of the last
// cycle. Cancellation while waiting for changes ends watch mode normally.
func (o *Orchestrator) Run(ctx context.Context) (*operation.ExecutionResult, error) {
	result := o.RunCycle(ctx, 1, nil)
	if !o.opts.Watch {
		return result, nil
	}

	for cycle := 2; ; cycle++ {
		if ctx.Err() != nil {
			return result, nil
		}
		if err := o.hooks.WaitingForChanges.Call(struct{}{}); err != nil {
			o.logger.Error("hook failed", "hook", hooks.WaitingForChanges, "error", err)
			return result, err
		}

		unknown, err := o.waitForChanges(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return result, nil
			}
			return result, err
		}
		result = o.RunCycle(ctx, cycle, unknown)
	}
}

// waitForChanges blocks until a change touches the selection and returns the
// changed projects plus everything that depends on them.
func (o *Orchestrator) waitForChanges(ctx context.Context) ([]*workspace.Project, error) {
	for {
		changed, err := o.opts.Changes.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if affected := o.affected(changed); len(affected) > 0 {
			o.logger.Info("changes detected", "projects", projectNames(affected))
			return affected, nil
		}
		o.logger.Debug("ignoring changes outside the selection", "projects", projectNames(changed))
	}
}

// affected returns the selected projects that changed or transitively depend
// on a changed project, in selection order.
func (o *Orchestrator) affected(changed []*workspace.Project) []*workspace.Project {
	dirty := make(map[string]bool, len(changed))
	for _, p := range changed {
		dirty[p.Name] = true
	}

	// Selection order is declaration order and the workspace rejects project
	// cycles, but dependencies may be declared after their consumers, so
	// iterate until nothing new is marked.
	for grew := true; grew; {
		grew = false
		for _, p := range o.projects {
			if dirty[p.Name] {
				continue
			}
			for _, dep := range o.opts.Workspace.DependenciesOf(p) {
				if dirty[dep.Name] {
					dirty[p.Name] = true
					grew = true
					break
				}
			}
		}
	}

	var out []*workspace.Project
	for _, p := range o.projects {
		if dirty[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// RunCycle builds and executes one cycle. A nil unknown set means every
// selected project is in an unknown state. The returned result is never nil;
// a failure to create the operations is reported as its fatal error.
func (o *Orchestrator) RunCycle(ctx context.Context, cycle int, unknown []*workspace.Project) *operation.ExecutionResult {
	log := o.logger.WithCycle(cycle)
	start := o.now()

	if unknown == nil {
		unknown = o.projects
	}
	if o.opts.Analyzer != nil {
		o.opts.Analyzer.Forget(unknown...)
	}

	cctx := o.createContext(cycle, unknown)

	var result *operation.ExecutionResult
	set, err := o.hooks.CreateOperations.Promise(ctx, operation.NewSet(), cctx)
	if err != nil {
		log.Error("hook failed", "hook", hooks.CreateOperations, "error", err, "severity", errors.GetSeverity(err).String())
		result = operation.NewExecutionResult(nil)
		result.Finish(err)
	} else {
		result = o.engine.RunCycle(ctx, set.Operations(), cctx)
	}

	o.recordTelemetry(log, cycle, result, o.now().Sub(start))
	return result
}

func (o *Orchestrator) createContext(cycle int, unknown []*workspace.Project) *operation.CreateContext {
	return operation.NewCreateContext(operation.CreateContextOptions{
		BuildCache:                o.opts.BuildCache,
		CustomParameters:          o.opts.CustomParameters,
		IsIncrementalBuildAllowed: o.opts.Incremental,
		IsInitial:                 cycle == 1,
		IsWatch:                   o.opts.Watch,
		Clean:                     o.opts.Clean && cycle == 1,
		PhaseOriginal:             o.original,
		PhaseSelection:            o.phases,
		ProjectSelection:          o.projects,
		ProjectsInUnknownState:    unknown,
		ChangeAnalyzer:            o.opts.Analyzer,
		Workspace:                 o.opts.Workspace,
		Cycle:                     cycle,
	})
}

// Plan builds the operation graph of the first cycle without running it.
func (o *Orchestrator) Plan(ctx context.Context) (*operation.Graph, error) {
	set, err := o.hooks.CreateOperations.Promise(ctx, operation.NewSet(), o.createContext(1, o.projects))
	if err != nil {
		return nil, err
	}
	return operation.NewGraph(set.Operations())
}

// recordTelemetry fires beforeLog and saves the record. Telemetry problems
// are logged and never change the cycle's outcome.
func (o *Orchestrator) recordTelemetry(log *logging.Logger, cycle int, result *operation.ExecutionResult, elapsed time.Duration) {
	name := o.opts.Name
	if name == "" {
		name = "phasebuild"
	}
	rec := telemetry.Build(name, cycle, result, elapsed, o.now())
	if err := o.hooks.BeforeLog.Call(rec); err != nil {
		log.Error("hook failed", "hook", hooks.BeforeLog, "error", err)
		return
	}
	if o.opts.Telemetry == nil {
		return
	}
	path, err := o.opts.Telemetry.Save(rec)
	if err != nil {
		log.Warn("failed to save telemetry", "error", err)
		return
	}
	log.Debug("telemetry saved", "path", path)
}

func projectNames(projects []*workspace.Project) []string {
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	return names
}
