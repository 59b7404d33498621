package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// Clean removes the clean targets of a phase from a project folder.
type Clean struct {
	Project *workspace.Project
	Targets []string
}

// Silent implements operation.Runner. Clean operations are bookkeeping and
// never reported.
func (c *Clean) Silent() bool { return true }

// Execute implements operation.Runner. It returns NO OP when none of the
// targets existed.
func (c *Clean) Execute(ctx context.Context, rc *operation.RunnerContext) (operation.Status, error) {
	root := c.Project.Dir()
	removed := 0
	for _, target := range c.Targets {
		if err := ctx.Err(); err != nil {
			return operation.StatusFailure, err
		}
		path, err := resolveInside(root, target)
		if err != nil {
			return operation.StatusFailure, err
		}
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return operation.StatusFailure, fmt.Errorf("remove %s: %w", path, err)
		}
		rc.Logger.Debug("removed clean target", "path", path)
		removed++
	}
	if removed == 0 {
		return operation.StatusNoOp, nil
	}
	return operation.StatusSuccess, nil
}

// resolveInside joins target to root and rejects results outside root.
func resolveInside(root, target string) (string, error) {
	path := filepath.Join(root, target)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(target) {
		return "", fmt.Errorf("%w: clean target %q is outside project folder %s", errors.ErrInvalidInput, target, root)
	}
	return path, nil
}

// NoOp finishes with NO OP without doing anything. Tasks without a command
// use it.
type NoOp struct {
	IsSilent bool
}

// Silent implements operation.Runner.
func (n NoOp) Silent() bool { return n.IsSilent }

// Execute implements operation.Runner.
func (NoOp) Execute(context.Context, *operation.RunnerContext) (operation.Status, error) {
	return operation.StatusNoOp, nil
}

// Func adapts a function to operation.Runner.
type Func struct {
	Fn       func(ctx context.Context, rc *operation.RunnerContext) (operation.Status, error)
	IsSilent bool
}

// Silent implements operation.Runner.
func (f Func) Silent() bool { return f.IsSilent }

// Execute implements operation.Runner.
func (f Func) Execute(ctx context.Context, rc *operation.RunnerContext) (operation.Status, error) {
	if f.Fn == nil {
		return operation.StatusNoOp, nil
	}
	return f.Fn(ctx, rc)
}
