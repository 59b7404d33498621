// Package plugins contains the built-in plugins every run applies.
//
// A plugin taps hooks on a [hooks.Registry]; the order in which plugins are
// applied is the order their handlers run. [PhasedOperations] builds the
// operation graph from the workspace definition, [ConsoleStatus] prints
// status lines and a summary, [Timeline] prints the parallelism chart and
// [Telemetry] annotates the per-cycle telemetry record.
package plugins

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/runner"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// CleanTaskName is the task part of a clean operation's name.
const CleanTaskName = "clean"

// OperationName returns the display name of a task operation:
// "<project> (<phase>:<task>)", shortened to "<project> (<phase>)" when the
// phase has a single task named like the phase.
func OperationName(project *workspace.Project, phase *workspace.Phase, task string) string {
	if len(phase.Tasks) == 1 && task == phase.Name {
		return fmt.Sprintf("%s (%s)", project.Name, phase.Name)
	}
	return fmt.Sprintf("%s (%s:%s)", project.Name, phase.Name, task)
}

// PhasedOperations creates one operation per selected project, phase and
// task, wired by the phase and task dependencies of the workspace.
type PhasedOperations struct{}

// Name implements hooks.Plugin.
func (PhasedOperations) Name() string { return "phased-operations" }

// Apply implements hooks.Plugin.
func (p PhasedOperations) Apply(r *hooks.Registry) error {
	r.CreateOperations.Tap(p.Name(), p.createOperations)
	return nil
}

// cell holds the operations of one phase on one project.
type cell struct {
	clean *operation.Operation
	tasks map[string]*operation.Operation
	all   []*operation.Operation
}

func (p PhasedOperations) createOperations(_ context.Context, set *operation.Set, cctx *operation.CreateContext) (*operation.Set, error) {
	ws := cctx.Workspace()
	if ws == nil {
		return set, nil
	}
	phases := cctx.PhaseSelection()
	projects := cctx.ProjectSelection()

	cells := make(map[string]map[string]*cell, len(phases))
	for _, phase := range phases {
		byProject := make(map[string]*cell, len(projects))
		for _, project := range projects {
			c := &cell{tasks: make(map[string]*operation.Operation, len(phase.Tasks))}
			if cctx.Clean() && len(phase.Clean) > 0 {
				c.clean = operation.New(operation.Options{
					Name:    fmt.Sprintf("%s (%s:%s)", project.Name, phase.Name, CleanTaskName),
					Phase:   phase,
					Project: project,
					Runner:  &runner.Clean{Project: project, Targets: phase.Clean},
				})
				c.all = append(c.all, c.clean)
				set.Add(c.clean)
			}
			for i := range phase.Tasks {
				task := &phase.Tasks[i]
				op := operation.New(operation.Options{
					Name:    OperationName(project, phase, task.Name),
					Phase:   phase,
					Project: project,
					Runner:  taskRunner(project, phase, task),
				})
				c.tasks[task.Name] = op
				c.all = append(c.all, op)
				set.Add(op)
			}
			byProject[project.Name] = c
		}
		cells[phase.Name] = byProject
	}

	for _, phase := range phases {
		for _, project := range projects {
			c := cells[phase.Name][project.Name]
			deps := phaseDependencies(ws, cells, phase, project, projects)
			for i := range phase.Tasks {
				task := &phase.Tasks[i]
				op := c.tasks[task.Name]
				if c.clean != nil {
					op.AddDependency(c.clean)
				}
				for _, dep := range deps {
					op.AddDependency(dep)
				}
				for _, name := range task.DependsOn {
					dep, ok := c.tasks[name]
					if !ok {
						return set, errors.NewConfigurationError(
							fmt.Sprintf("task %q of phase %q depends on unknown task", task.Name, phase.Name),
							errors.ErrUnresolvedReference,
						).WithIdentifiers(op.Name, name)
					}
					op.AddDependency(dep)
				}
			}
		}
	}
	return set, nil
}

// phaseDependencies returns the operations every task of phase on project
// waits for. Phases outside the selection contribute nothing, and upstream
// edges to unselected projects are dropped: those are assumed up to date.
func phaseDependencies(ws *workspace.Workspace, cells map[string]map[string]*cell, phase *workspace.Phase, project *workspace.Project, selected []*workspace.Project) []*operation.Operation {
	var deps []*operation.Operation

	for _, name := range phase.Dependencies {
		byProject, ok := cells[name]
		if !ok {
			continue
		}
		for _, p := range selected {
			deps = append(deps, byProject[p.Name].all...)
		}
	}

	for _, name := range phase.Self {
		if byProject, ok := cells[name]; ok {
			deps = append(deps, byProject[project.Name].all...)
		}
	}

	for _, name := range phase.Upstream {
		byProject, ok := cells[name]
		if !ok {
			continue
		}
		for _, dep := range ws.DependenciesOf(project) {
			if c, ok := byProject[dep.Name]; ok {
				deps = append(deps, c.all...)
			}
		}
	}
	return deps
}

func taskRunner(project *workspace.Project, phase *workspace.Phase, task *workspace.Task) operation.Runner {
	if task.Command == "" {
		return runner.NoOp{IsSilent: task.Silent}
	}
	return &runner.Shell{
		Command:  task.Command,
		Project:  project,
		Key:      phase.Name + ":" + task.Name,
		IsSilent: task.Silent,
	}
}
