// Package operation models the unit of work the execution engine schedules.
//
// An [Operation] is typically one task of one phase for one project. It
// carries a [Runner] that does the work and a set of operations it depends
// on. Operations only describe work: everything that changes while a cycle
// runs (status, timestamps, output) lives on the [Record] the engine keeps in
// an [ExecutionResult], so a fresh cycle never sees a previous cycle's state.
//
// Dependency edges are held as direct references while plugins assemble the
// set; [NewGraph] turns a finished set into an index-addressed table that the
// engine and validators traverse.
package operation

import (
	"context"
	"io"

	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// Runner performs an operation's work and reports how it ended.
//
// Execute returns one of the runner result statuses (SUCCESS, SUCCESS WITH
// WARNINGS, FAILURE, SKIPPED, FROM CACHE, NO OP). A non-nil error means the
// runner could not do its work at all; the engine records it as FAILURE.
type Runner interface {
	Execute(ctx context.Context, rc *RunnerContext) (Status, error)

	// Silent runners are left out of reports and the timeline.
	Silent() bool
}

// RunnerContext is what a runner receives for one execution.
type RunnerContext struct {
	Operation *Operation
	Context   *CreateContext
	Logger    *logging.Logger
	// Output collects the operation's console output. Reporters print it
	// after the operation finishes.
	Output io.Writer
}

// Options configures a new Operation.
type Options struct {
	Name    string
	Phase   *workspace.Phase
	Project *workspace.Project
	Runner  Runner
}

// Operation is the atomic schedulable unit.
type Operation struct {
	// Name is the display name, unique within a cycle.
	Name string
	// Phase is the associated phase, nil for cross-cutting operations.
	Phase *workspace.Phase
	// Project is the project the operation works on, if any.
	Project *workspace.Project
	Runner  Runner

	deps []*Operation
}

// New creates an operation with no dependencies.
func New(opts Options) *Operation {
	return &Operation{
		Name:    opts.Name,
		Phase:   opts.Phase,
		Project: opts.Project,
		Runner:  opts.Runner,
	}
}

// AddDependency records that o may only start after dep has finished
// successfully. Adding the same dependency twice has no effect.
func (o *Operation) AddDependency(dep *Operation) {
	for _, d := range o.deps {
		if d == dep {
			return
		}
	}
	o.deps = append(o.deps, dep)
}

// RemoveDependency removes dep from o's dependencies, if present.
func (o *Operation) RemoveDependency(dep *Operation) {
	for i, d := range o.deps {
		if d == dep {
			o.deps = append(o.deps[:i], o.deps[i+1:]...)
			return
		}
	}
}

// Dependencies returns a copy of o's dependencies in insertion order.
func (o *Operation) Dependencies() []*Operation {
	return append([]*Operation(nil), o.deps...)
}

// Silent reports whether the operation is hidden from reports.
func (o *Operation) Silent() bool {
	return o.Runner != nil && o.Runner.Silent()
}

// PhaseName returns the associated phase name, or "" when there is none.
func (o *Operation) PhaseName() string {
	if o.Phase == nil {
		return ""
	}
	return o.Phase.Name
}

// String returns the operation name.
func (o *Operation) String() string {
	return o.Name
}
