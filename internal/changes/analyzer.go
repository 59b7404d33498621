// Package changes decides whether a project's last successful output for a
// task is still valid.
//
// The [Analyzer] fingerprints a project's input files (selected by the
// project's glob inputs, minus the ignore patterns) and compares the
// fingerprint with the one stored when the task last succeeded. Stored
// fingerprints live in one JSON file per project under the state directory.
//
// A project's snapshot also covers the snapshots of the projects it depends
// on, when the analyzer knows the workspace, so a change in a library makes
// its consumers stale too.
//
// Fingerprints are computed at most once per project per cycle: the
// orchestrator calls [Analyzer.Forget] for the projects whose state is
// unknown before each cycle, and the snapshot taken before a task ran is the
// one recorded when it succeeds, so outputs written by the task itself do not
// invalidate it.
package changes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// projectState is the persisted form of one project's fingerprints.
type projectState struct {
	Project string            `json:"project"`
	Tasks   map[string]string `json:"tasks"`
}

// Analyzer is a file-state change analyzer. It is safe for concurrent use.
type Analyzer struct {
	stateDir  string
	ignore    *Matcher
	outputs   *Matcher
	workspace *workspace.Workspace
	logger    *logging.Logger

	mu        sync.Mutex
	snapshots map[string]string
}

// Options configures an Analyzer.
type Options struct {
	// StateDir holds the per-project state files.
	StateDir string
	// Ignore patterns are excluded from every project's inputs.
	Ignore []string
	// Workspace resolves project dependencies, and the clean targets of its
	// phases are excluded from every project's inputs as build outputs. Nil
	// means snapshots cover only the project's own files.
	Workspace *workspace.Workspace
	Logger    *logging.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	ignore, err := NewMatcher(opts.Ignore)
	if err != nil {
		return nil, err
	}
	outputs, err := NewMatcher(outputPatterns(opts.Workspace))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Analyzer{
		stateDir:  opts.StateDir,
		ignore:    ignore,
		outputs:   outputs,
		workspace: opts.Workspace,
		logger:    logger,
		snapshots: make(map[string]string),
	}, nil
}

// outputPatterns returns the clean targets of every phase as project-relative
// patterns covering the target and everything below it. A task writing its
// own outputs must not make itself stale.
func outputPatterns(ws *workspace.Workspace) []string {
	if ws == nil {
		return nil
	}
	var patterns []string
	for _, phase := range ws.Phases {
		for _, target := range phase.Clean {
			target = strings.TrimSuffix(filepath.ToSlash(target), "/")
			if target == "" || target == "." {
				continue
			}
			patterns = append(patterns, target, target+"/**")
		}
	}
	return patterns
}

// Forget drops the cached fingerprints of projects so the next query
// recomputes them.
func (a *Analyzer) Forget(projects ...*workspace.Project) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range projects {
		delete(a.snapshots, p.Name)
	}
}

// IsUpToDate reports whether key last succeeded with the project's current
// inputs.
func (a *Analyzer) IsUpToDate(ctx context.Context, project *workspace.Project, key string) (bool, error) {
	current, err := a.snapshot(ctx, project)
	if err != nil {
		return false, err
	}
	state, err := a.load(project)
	if err != nil {
		return false, err
	}
	stored, ok := state.Tasks[key]
	return ok && stored == current, nil
}

// RecordSuccess stores the project's fingerprint for key.
func (a *Analyzer) RecordSuccess(ctx context.Context, project *workspace.Project, key string) error {
	current, err := a.snapshot(ctx, project)
	if err != nil {
		return err
	}
	return a.update(project, func(state *projectState) {
		state.Tasks[key] = current
	})
}

// Fingerprint returns the current fingerprint of the project's inputs,
// bypassing the per-cycle cache.
func (a *Analyzer) Fingerprint(ctx context.Context, project *workspace.Project) (string, error) {
	inputs, err := NewMatcher(project.Inputs)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	root := project.Dir()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if a.ignore.MatchDir(rel) || a.outputs.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || a.ignore.Match(rel) || a.outputs.Match(rel) {
			return nil
		}
		if !inputs.Empty() && !inputs.Match(rel) {
			return nil
		}
		return hashFile(h, path, rel)
	})
	if err != nil {
		return "", errors.Wrapf(err, "fingerprint %s", project.Name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(h io.Writer, path, rel string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintf(h, "%s\x00", rel)
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	_, err = h.Write([]byte{0})
	return err
}

func (a *Analyzer) snapshot(ctx context.Context, project *workspace.Project) (string, error) {
	a.mu.Lock()
	if s, ok := a.snapshots[project.Name]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	s, err := a.Fingerprint(ctx, project)
	if err != nil {
		return "", err
	}
	if a.workspace != nil {
		if deps := a.workspace.DependenciesOf(project); len(deps) > 0 {
			h := sha256.New()
			h.Write([]byte(s))
			for _, dep := range deps {
				ds, err := a.snapshot(ctx, dep)
				if err != nil {
					return "", err
				}
				fmt.Fprintf(h, "\x00%s=%s", dep.Name, ds)
			}
			s = hex.EncodeToString(h.Sum(nil))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Another task of the same project may have raced us; keep the first.
	if existing, ok := a.snapshots[project.Name]; ok {
		return existing, nil
	}
	a.snapshots[project.Name] = s
	a.logger.Debug("fingerprinted project", "project", project.Name)
	return s, nil
}

func (a *Analyzer) statePath(project *workspace.Project) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, project.Name)
	return filepath.Join(a.stateDir, name+".json")
}

func (a *Analyzer) load(project *workspace.Project) (*projectState, error) {
	if a.stateDir == "" {
		return &projectState{Project: project.Name, Tasks: map[string]string{}}, nil
	}
	if err := os.MkdirAll(a.stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	fl := newFileLock(a.stateDir)
	if err := fl.lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.unlock() }()
	return a.read(project)
}

func (a *Analyzer) read(project *workspace.Project) (*projectState, error) {
	state := &projectState{Project: project.Name, Tasks: map[string]string{}}
	data, err := os.ReadFile(a.statePath(project))
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt state file only costs a rebuild.
		a.logger.Warn("discarding unreadable state file", "project", project.Name, "error", err)
		return &projectState{Project: project.Name, Tasks: map[string]string{}}, nil
	}
	if state.Tasks == nil {
		state.Tasks = map[string]string{}
	}
	return state, nil
}

// update applies fn to the project's state under the directory lock and
// writes it back atomically.
func (a *Analyzer) update(project *workspace.Project, fn func(*projectState)) error {
	if a.stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.stateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	fl := newFileLock(a.stateDir)
	if err := fl.lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.unlock() }()

	state, err := a.read(project)
	if err != nil {
		return err
	}
	fn(state)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	target := a.statePath(project)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
