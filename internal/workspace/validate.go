package workspace

import (
	"fmt"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// validate checks every cross reference and rejects dependency cycles between
// projects, between phases, and between the tasks of one phase.
func (w *Workspace) validate() error {
	for _, p := range w.Projects {
		for _, dep := range p.Dependencies {
			if _, ok := w.projectsByName[dep]; !ok {
				return errors.NewConfigurationError(
					fmt.Sprintf("project %q depends on unknown project", p.Name),
					errors.ErrUnresolvedReference,
				).WithIdentifiers(p.Name, dep)
			}
		}
	}

	for _, ph := range w.Phases {
		for _, group := range [][]string{ph.Dependencies, ph.Self, ph.Upstream} {
			for _, ref := range group {
				if _, ok := w.phasesByName[ref]; !ok {
					return errors.NewConfigurationError(
						fmt.Sprintf("phase %q references unknown phase", ph.Name),
						errors.ErrUnresolvedReference,
					).WithIdentifiers(ph.Name, ref)
				}
			}
		}
		if err := validateTasks(ph); err != nil {
			return err
		}
	}

	projectNames := make([]string, len(w.Projects))
	for i, p := range w.Projects {
		projectNames[i] = p.Name
	}
	if cycle := findCycle(projectNames, func(name string) []string {
		return w.projectsByName[name].Dependencies
	}); cycle != nil {
		return errors.NewConfigurationError("project dependency cycle", errors.ErrDependencyCycle).WithIdentifiers(cycle...)
	}

	phaseNames := make([]string, len(w.Phases))
	for i, ph := range w.Phases {
		phaseNames[i] = ph.Name
	}
	if cycle := findCycle(phaseNames, func(name string) []string {
		ph := w.phasesByName[name]
		refs := make([]string, 0, len(ph.Dependencies)+len(ph.Self))
		refs = append(refs, ph.Dependencies...)
		return append(refs, ph.Self...)
	}); cycle != nil {
		return errors.NewConfigurationError("phase dependency cycle", errors.ErrDependencyCycle).WithIdentifiers(cycle...)
	}

	return nil
}

func validateTasks(ph *Phase) error {
	if len(ph.Tasks) == 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("phase %q has no tasks", ph.Name),
			errors.ErrInvalidInput,
		).WithIdentifiers(ph.Name)
	}

	names := make([]string, 0, len(ph.Tasks))
	seen := make(map[string]bool, len(ph.Tasks))
	for _, task := range ph.Tasks {
		if task.Name == "" {
			return errors.NewConfigurationError(
				fmt.Sprintf("phase %q has a task without a name", ph.Name),
				errors.ErrInvalidInput,
			)
		}
		if seen[task.Name] {
			return errors.NewConfigurationError("duplicate task", errors.ErrDuplicateName).WithIdentifiers(ph.Name, task.Name)
		}
		seen[task.Name] = true
		names = append(names, task.Name)
	}

	for _, task := range ph.Tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return errors.NewConfigurationError(
					fmt.Sprintf("task %q of phase %q depends on unknown task", task.Name, ph.Name),
					errors.ErrUnresolvedReference,
				).WithIdentifiers(ph.Name, dep)
			}
		}
	}

	if cycle := findCycle(names, func(name string) []string {
		task, _ := ph.Task(name)
		return task.DependsOn
	}); cycle != nil {
		return errors.NewConfigurationError(
			fmt.Sprintf("task dependency cycle in phase %q", ph.Name),
			errors.ErrDependencyCycle,
		).WithIdentifiers(cycle...)
	}
	return nil
}

// findCycle runs a depth-first search in declaration order and returns one
// cycle as a closed path (first element repeated last), or nil.
func findCycle(nodes []string, edges func(string) []string) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, m := range edges(n) {
			switch color[m] {
			case white:
				if visit(m) {
					return true
				}
			case gray:
				for i, s := range stack {
					if s == m {
						cycle = append(append([]string{}, stack[i:]...), m)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}
