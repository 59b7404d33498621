package workspace

import (
	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// SelectProjects resolves a project selection. With no names at all every
// project is selected. Names in to are selected together with their
// transitive dependencies; names in only are selected alone. The result keeps
// declaration order.
func (w *Workspace) SelectProjects(to, only []string) ([]*Project, error) {
	if len(to) == 0 && len(only) == 0 {
		return append([]*Project(nil), w.Projects...), nil
	}

	selected := make(map[string]bool)
	var addWithDeps func(p *Project)
	addWithDeps = func(p *Project) {
		if selected[p.Name] {
			return
		}
		selected[p.Name] = true
		for _, dep := range w.DependenciesOf(p) {
			addWithDeps(dep)
		}
	}

	for _, name := range to {
		p, ok := w.projectsByName[name]
		if !ok {
			return nil, errors.NewConfigurationError("unknown project in --to", errors.ErrUnresolvedReference).WithIdentifiers(name)
		}
		addWithDeps(p)
	}
	for _, name := range only {
		if _, ok := w.projectsByName[name]; !ok {
			return nil, errors.NewConfigurationError("unknown project in --only", errors.ErrUnresolvedReference).WithIdentifiers(name)
		}
		selected[name] = true
	}

	result := make([]*Project, 0, len(selected))
	for _, p := range w.Projects {
		if selected[p.Name] {
			result = append(result, p)
		}
	}
	return result, nil
}

// ExpandPhases returns the requested phases plus every phase they depend on
// through dependencies, self, or upstream references, in declaration order.
// An empty request selects every phase.
func (w *Workspace) ExpandPhases(requested []string) ([]*Phase, error) {
	if len(requested) == 0 {
		return append([]*Phase(nil), w.Phases...), nil
	}

	selected := make(map[string]bool)
	var add func(ph *Phase)
	add = func(ph *Phase) {
		if selected[ph.Name] {
			return
		}
		selected[ph.Name] = true
		for _, group := range [][]string{ph.Dependencies, ph.Self, ph.Upstream} {
			for _, ref := range group {
				add(w.phasesByName[ref])
			}
		}
	}

	for _, name := range requested {
		ph, ok := w.phasesByName[name]
		if !ok {
			return nil, errors.NewConfigurationError("unknown phase", errors.ErrUnresolvedReference).WithIdentifiers(name)
		}
		add(ph)
	}

	result := make([]*Phase, 0, len(selected))
	for _, ph := range w.Phases {
		if selected[ph.Name] {
			result = append(result, ph)
		}
	}
	return result, nil
}

// ResolvePhases looks up phases by name without expanding dependencies.
func (w *Workspace) ResolvePhases(names []string) ([]*Phase, error) {
	result := make([]*Phase, 0, len(names))
	for _, name := range names {
		ph, ok := w.phasesByName[name]
		if !ok {
			return nil, errors.NewConfigurationError("unknown phase", errors.ErrUnresolvedReference).WithIdentifiers(name)
		}
		result = append(result, ph)
	}
	return result, nil
}
