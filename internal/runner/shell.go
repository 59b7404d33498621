// Package runner provides the concrete operation runners.
//
//   - [Shell] runs a task command through sh in the project folder.
//   - [Clean] removes a phase's clean targets from the project folder.
//   - [NoOp] finishes immediately with NO OP.
//   - [Func] adapts a function, mostly for plugins and tests.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// ParamEnvPrefix prefixes the environment variables carrying custom
// parameters: --param mode=fast is exported as PHASEBUILD_PARAM_MODE=fast.
const ParamEnvPrefix = "PHASEBUILD_PARAM_"

// Shell runs a command with "sh -c" in the project folder.
type Shell struct {
	Command string
	Project *workspace.Project
	// Key identifies the task to the change analyzer and build cache,
	// "<phase>:<task>".
	Key      string
	IsSilent bool
}

// Silent implements operation.Runner.
func (s *Shell) Silent() bool { return s.IsSilent }

// Execute implements operation.Runner.
//
// With incremental builds allowed, an up-to-date project is SKIPPED and a
// cache hit is FROM CACHE. Otherwise the command runs: a non-zero exit is a
// FAILURE and output on stderr turns SUCCESS into SUCCESS WITH WARNINGS.
func (s *Shell) Execute(ctx context.Context, rc *operation.RunnerContext) (operation.Status, error) {
	cctx := rc.Context
	log := rc.Logger

	if cctx != nil && cctx.IsIncrementalBuildAllowed() {
		if analyzer := cctx.ChangeAnalyzer(); analyzer != nil {
			upToDate, err := analyzer.IsUpToDate(ctx, s.Project, s.Key)
			if err != nil {
				log.Warn("change analysis failed, running task", "error", err)
			} else if upToDate {
				return operation.StatusSkipped, nil
			}
		}
		if cache := cctx.BuildCache(); cache != nil {
			restored, err := cache.TryRestore(ctx, s.Project, s.Key)
			if err != nil {
				log.Warn("build cache restore failed, running task", "error", err)
			} else if restored {
				s.recordSuccess(ctx, rc)
				return operation.StatusFromCache, nil
			}
		}
	}

	out := rc.Output
	if out == nil {
		out = io.Discard
	}
	sink := &lockedWriter{w: out}
	stderr := &countingWriter{w: sink}

	cmd := exec.CommandContext(ctx, "sh", "-c", s.Command)
	cmd.Dir = s.Project.Dir()
	cmd.Env = append(os.Environ(), environment(cctx, rc.Operation, s.Project)...)
	cmd.Stdout = sink
	cmd.Stderr = stderr

	log.Debug("running command", "command", s.Command, "dir", cmd.Dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(sink, "command exited with code %d\n", exitErr.ExitCode())
			return operation.StatusFailure, nil
		}
		return operation.StatusFailure, fmt.Errorf("run %q: %w", s.Command, err)
	}

	s.recordSuccess(ctx, rc)
	if cctx != nil {
		if cache := cctx.BuildCache(); cache != nil {
			if err := cache.TrySave(ctx, s.Project, s.Key); err != nil {
				log.Warn("build cache save failed", "error", err)
			}
		}
	}

	if stderr.n > 0 {
		return operation.StatusSuccessWithWarning, nil
	}
	return operation.StatusSuccess, nil
}

func (s *Shell) recordSuccess(ctx context.Context, rc *operation.RunnerContext) {
	if rc.Context == nil {
		return
	}
	analyzer := rc.Context.ChangeAnalyzer()
	if analyzer == nil {
		return
	}
	if err := analyzer.RecordSuccess(ctx, s.Project, s.Key); err != nil {
		rc.Logger.Warn("recording project state failed", "error", err)
	}
}

// environment returns the variables exported to task commands.
func environment(cctx *operation.CreateContext, op *operation.Operation, project *workspace.Project) []string {
	env := []string{"PHASEBUILD_PROJECT=" + project.Name}
	if op != nil && op.Phase != nil {
		env = append(env, "PHASEBUILD_PHASE="+op.Phase.Name)
	}
	if cctx == nil {
		return env
	}

	params := cctx.CustomParameters()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, ParamEnvName(name)+"="+params[name])
	}
	return env
}

// ParamEnvName returns the environment variable name of a custom parameter.
func ParamEnvName(name string) string {
	name = strings.TrimLeft(name, "-")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return ParamEnvPrefix + name
}

// lockedWriter serializes the stdout and stderr copy goroutines of exec.Cmd.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// countingWriter counts non-whitespace bytes passing through.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += len(bytes.TrimSpace(p))
	return c.w.Write(p)
}
