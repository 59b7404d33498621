// Package workspace loads the declarative description of a multi-project
// workspace: its projects, and the phases and tasks that can run on them.
//
// The workspace file is YAML:
//
//	projects:
//	  - name: lib
//	    folder: packages/lib
//	    inputs: ["src/**", "go.mod"]
//	  - name: app
//	    folder: packages/app
//	    dependencies: [lib]
//	phases:
//	  - name: build
//	    upstream: [build]
//	    clean: [dist]
//	    tasks:
//	      - name: compile
//	        command: go build ./...
//
// Everything returned by this package is read-only once loaded.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the workspace file looked up in the working directory.
const DefaultFileName = "phasebuild.yaml"

// Project is one buildable unit of the workspace.
type Project struct {
	// Name identifies the project in selections and operation names.
	Name string `yaml:"name"`
	// Folder is the project directory, relative to the workspace root.
	Folder string `yaml:"folder"`
	// Dependencies names the projects this project consumes.
	Dependencies []string `yaml:"dependencies,omitempty"`
	// Inputs are glob patterns (relative to Folder) the change analyzer
	// considers. Empty means every file in the folder.
	Inputs []string `yaml:"inputs,omitempty"`

	dir string
}

// NewProject creates a project rooted at dir, outside of any workspace file.
func NewProject(name, dir string, inputs ...string) *Project {
	return &Project{Name: name, Folder: dir, Inputs: inputs, dir: filepath.Clean(dir)}
}

// Dir returns the absolute project directory.
func (p *Project) Dir() string {
	return p.dir
}

// Task is a named unit of work inside a phase.
type Task struct {
	Name string `yaml:"name"`
	// Command is run through the shell in the project directory. An empty
	// command makes the task a no-op.
	Command string `yaml:"command,omitempty"`
	// DependsOn names tasks of the same phase that must finish first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Silent hides the task's operations from reports.
	Silent bool `yaml:"silent,omitempty"`
}

// Phase is a named partition of work, e.g. "build" or "test".
type Phase struct {
	Name string `yaml:"name"`
	// Dependencies are phases whose operations, for every selected project,
	// must all finish before any operation of this phase starts.
	Dependencies []string `yaml:"dependencies,omitempty"`
	// Self are phases that must finish on the same project first.
	Self []string `yaml:"self,omitempty"`
	// Upstream are phases that must finish on each dependency project first.
	Upstream []string `yaml:"upstream,omitempty"`
	// Clean lists files and folders, relative to a project, removed before
	// the phase runs when a clean build is requested.
	Clean []string `yaml:"clean,omitempty"`
	Tasks []Task   `yaml:"tasks"`
}

// Task returns the named task of the phase.
func (p *Phase) Task(name string) (*Task, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].Name == name {
			return &p.Tasks[i], true
		}
	}
	return nil, false
}

// Workspace is the loaded project and phase definition.
type Workspace struct {
	Projects []*Project `yaml:"projects"`
	Phases   []*Phase   `yaml:"phases"`

	root           string
	projectsByName map[string]*Project
	phasesByName   map[string]*Phase
}

// Load reads and validates the workspace file at path. Project folders are
// resolved relative to the file's directory.
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewConfigurationError("workspace file "+path+" does not exist", errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read workspace file")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve workspace path")
	}
	return Parse(data, filepath.Dir(absPath))
}

// Parse decodes and validates a workspace definition rooted at root.
func Parse(data []byte, root string) (*Workspace, error) {
	var ws Workspace
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ws); err != nil {
		return nil, fmt.Errorf("failed to parse workspace file: %w", err)
	}
	ws.root = root
	if err := ws.index(); err != nil {
		return nil, err
	}
	if err := ws.validate(); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Project returns the named project.
func (w *Workspace) Project(name string) (*Project, bool) {
	p, ok := w.projectsByName[name]
	return p, ok
}

// Phase returns the named phase.
func (w *Workspace) Phase(name string) (*Phase, bool) {
	p, ok := w.phasesByName[name]
	return p, ok
}

// DependenciesOf returns the direct dependency projects of p, in declaration order.
func (w *Workspace) DependenciesOf(p *Project) []*Project {
	deps := make([]*Project, 0, len(p.Dependencies))
	for _, name := range p.Dependencies {
		if dep, ok := w.projectsByName[name]; ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

func (w *Workspace) index() error {
	w.projectsByName = make(map[string]*Project, len(w.Projects))
	for _, p := range w.Projects {
		if p.Name == "" {
			return errors.NewConfigurationError("project without a name", errors.ErrInvalidInput)
		}
		if _, dup := w.projectsByName[p.Name]; dup {
			return errors.NewConfigurationError("duplicate project", errors.ErrDuplicateName).WithIdentifiers(p.Name)
		}
		folder := p.Folder
		if folder == "" {
			folder = p.Name
		}
		if filepath.IsAbs(folder) {
			p.dir = filepath.Clean(folder)
		} else {
			p.dir = filepath.Join(w.root, folder)
		}
		w.projectsByName[p.Name] = p
	}

	w.phasesByName = make(map[string]*Phase, len(w.Phases))
	for _, ph := range w.Phases {
		if ph.Name == "" {
			return errors.NewConfigurationError("phase without a name", errors.ErrInvalidInput)
		}
		if _, dup := w.phasesByName[ph.Name]; dup {
			return errors.NewConfigurationError("duplicate phase", errors.ErrDuplicateName).WithIdentifiers(ph.Name)
		}
		w.phasesByName[ph.Name] = ph
	}
	return nil
}
