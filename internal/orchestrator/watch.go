package orchestrator

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// WatchIgnore returns base plus the clean targets of the selected phases in
// every selected project, as patterns relative to the workspace root. Clean
// targets are build outputs; watching them would start a new cycle every
// time a cycle writes its outputs.
func (o *Orchestrator) WatchIgnore(base []string) []string {
	patterns := append([]string(nil), base...)
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		seen[p] = true
	}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}

	root := o.opts.Workspace.Root()
	for _, project := range o.projects {
		rel, err := filepath.Rel(root, project.Dir())
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, phase := range o.phases {
			for _, target := range phase.Clean {
				p := path.Join(rel, filepath.ToSlash(target))
				add(p)
				add(p + "/**")
			}
		}
	}
	return patterns
}

// WatchedProjects returns the selected projects and every project they
// depend on, in declaration order. A change in an unselected dependency still
// makes its selected consumers stale.
func (o *Orchestrator) WatchedProjects() []*workspace.Project {
	ws := o.opts.Workspace
	include := make(map[string]bool)
	var visit func(p *workspace.Project)
	visit = func(p *workspace.Project) {
		if include[p.Name] {
			return
		}
		include[p.Name] = true
		for _, dep := range ws.DependenciesOf(p) {
			visit(dep)
		}
	}
	for _, p := range o.projects {
		visit(p)
	}

	var out []*workspace.Project
	for _, p := range ws.Projects {
		if include[p.Name] {
			out = append(out, p)
		}
	}
	return out
}
