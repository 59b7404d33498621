package operation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

type stubRunner struct {
	silent bool
}

func (r stubRunner) Execute(context.Context, *RunnerContext) (Status, error) {
	return StatusSuccess, nil
}

func (r stubRunner) Silent() bool { return r.silent }

func newOp(name string, deps ...*Operation) *Operation {
	op := New(Options{Name: name, Runner: stubRunner{}})
	for _, d := range deps {
		op.AddDependency(d)
	}
	return op
}

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status    Status
		terminal  bool
		satisfies bool
		blocks    bool
		category  Category
	}{
		{StatusReady, false, false, false, CategoryNeutral},
		{StatusExecuting, false, false, false, CategoryNeutral},
		{StatusSuccess, true, true, false, CategorySuccess},
		{StatusSuccessWithWarning, true, true, false, CategoryWarning},
		{StatusFailure, true, false, true, CategoryFailure},
		{StatusSkipped, true, true, false, CategorySkipped},
		{StatusFromCache, true, true, false, CategorySkipped},
		{StatusNoOp, true, true, false, CategorySkipped},
		{StatusBlocked, true, false, true, CategoryFailure},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.SatisfiesDependents(); got != tt.satisfies {
				t.Errorf("SatisfiesDependents() = %v, want %v", got, tt.satisfies)
			}
			if got := tt.status.BlocksDependents(); got != tt.blocks {
				t.Errorf("BlocksDependents() = %v, want %v", got, tt.blocks)
			}
			if got := tt.status.Category(); got != tt.category {
				t.Errorf("Category() = %v, want %v", got, tt.category)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			var want bool
			switch from {
			case StatusReady:
				want = to == StatusExecuting || to == StatusBlocked
			case StatusExecuting:
				want = to.IsTerminal() && to != StatusBlocked
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRecord_Transition(t *testing.T) {
	res := NewExecutionResult([]*Operation{newOp("a")})
	rec := res.Records()[0]

	if rec.Status() != StatusReady {
		t.Fatalf("initial status = %s, want READY", rec.Status())
	}
	if err := rec.Transition(StatusSuccess); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Fatalf("READY -> SUCCESS error = %v, want ErrInvalidTransition", err)
	}
	if err := rec.Transition(StatusExecuting); err != nil {
		t.Fatalf("READY -> EXECUTING: %v", err)
	}
	if err := rec.Transition(StatusSuccess); err != nil {
		t.Fatalf("EXECUTING -> SUCCESS: %v", err)
	}
	if err := rec.Transition(StatusFailure); err == nil {
		t.Fatal("terminal status transitioned again")
	}
}

func TestRecord_Stopwatch(t *testing.T) {
	rec := newRecord(newOp("a"))
	if rec.Stopwatch().HasStarted() {
		t.Fatal("stopwatch started before Start")
	}

	start := time.Unix(100, 0)
	rec.Start(start)
	if rec.Stopwatch().Duration() != 0 {
		t.Errorf("Duration() before Stop = %v, want 0", rec.Stopwatch().Duration())
	}

	// A clock that stepped backwards still yields a non-negative duration.
	rec.Stop(start.Add(-time.Second))
	sw := rec.Stopwatch()
	if !sw.IsComplete() || sw.Duration() != 0 {
		t.Errorf("after backwards Stop: complete=%v duration=%v", sw.IsComplete(), sw.Duration())
	}

	rec.Stop(start.Add(3 * time.Second))
	if got := rec.Stopwatch().Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
}

func TestExecutionResult_Finish(t *testing.T) {
	run := func(statuses ...Status) *ExecutionResult {
		ops := make([]*Operation, len(statuses))
		for i := range statuses {
			ops[i] = newOp(string(rune('a' + i)))
		}
		res := NewExecutionResult(ops)
		for i, rec := range res.Records() {
			switch statuses[i] {
			case StatusReady:
			case StatusBlocked:
				_ = rec.Transition(StatusBlocked)
			default:
				_ = rec.Transition(StatusExecuting)
				_ = rec.Transition(statuses[i])
			}
		}
		res.Finish(nil)
		return res
	}

	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusNoOp},
		{"all success", []Status{StatusSuccess, StatusSkipped, StatusFromCache}, StatusSuccess},
		{"warning", []Status{StatusSuccess, StatusSuccessWithWarning}, StatusSuccessWithWarning},
		{"failure wins over warning", []Status{StatusSuccessWithWarning, StatusFailure}, StatusFailure},
		{"blocked", []Status{StatusSuccess, StatusBlocked}, StatusFailure},
		{"unfinished", []Status{StatusSuccess, StatusReady}, StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.statuses...).Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("fatal error", func(t *testing.T) {
		res := run(StatusSuccess)
		res.Finish(errors.ErrCycleAborted)
		if res.Status() != StatusFailure || !errors.Is(res.Err(), errors.ErrCycleAborted) {
			t.Errorf("Status() = %s, Err() = %v", res.Status(), res.Err())
		}
		if res.Succeeded() {
			t.Error("Succeeded() = true after fatal error")
		}
	})
}

func TestOperation_Dependencies(t *testing.T) {
	a := newOp("a")
	b := newOp("b", a)
	b.AddDependency(a)

	if deps := b.Dependencies(); len(deps) != 1 || deps[0] != a {
		t.Fatalf("Dependencies() = %v, want [a]", deps)
	}

	deps := b.Dependencies()
	deps[0] = nil
	if b.Dependencies()[0] != a {
		t.Error("Dependencies() exposed the internal slice")
	}

	b.RemoveDependency(a)
	if len(b.Dependencies()) != 0 {
		t.Errorf("Dependencies() after remove = %v", b.Dependencies())
	}

	silent := New(Options{Name: "s", Runner: stubRunner{silent: true}})
	if !silent.Silent() || a.Silent() {
		t.Error("Silent() does not follow the runner")
	}
}

func TestSet(t *testing.T) {
	a := newOp("a")
	b := newOp("b", a)
	c := newOp("c", a, b)

	s := NewSet(a, b, c, a)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if op, ok := s.Find("b"); !ok || op != b {
		t.Errorf("Find(b) = %v, %v", op, ok)
	}

	s.Remove(a)
	if s.Has(a) || s.Len() != 2 {
		t.Fatalf("a still present after Remove")
	}
	if len(b.Dependencies()) != 0 {
		t.Errorf("b still depends on removed a")
	}
	if deps := c.Dependencies(); len(deps) != 1 || deps[0] != b {
		t.Errorf("c.Dependencies() = %v, want [b]", deps)
	}

	got := s.Operations()
	if len(got) != 2 || got[0] != b || got[1] != c {
		t.Errorf("Operations() = %v, want [b c]", got)
	}
}

func TestCreateContext_IsFrozen(t *testing.T) {
	lib := &workspace.Project{Name: "lib"}
	app := &workspace.Project{Name: "app"}
	params := map[string]string{"mode": "fast"}
	selection := []*workspace.Project{lib, app}

	ctx := NewCreateContext(CreateContextOptions{
		CustomParameters: params,
		ProjectSelection: selection,
		Cycle:            1,
	})

	params["mode"] = "slow"
	selection[0] = app

	if v, _ := ctx.CustomParameter("mode"); v != "fast" {
		t.Errorf("CustomParameter(mode) = %q after caller mutation", v)
	}
	if got := ctx.ProjectSelection(); got[0] != lib {
		t.Error("ProjectSelection() changed after caller mutation")
	}

	got := ctx.CustomParameters()
	got["mode"] = "other"
	if v, _ := ctx.CustomParameter("mode"); v != "fast" {
		t.Error("CustomParameters() exposed the internal map")
	}

	if !ctx.IsProjectInUnknownState(lib) || !ctx.IsProjectInUnknownState(app) {
		t.Error("unknown state should default to the whole selection")
	}

	narrowed := NewCreateContext(CreateContextOptions{
		ProjectSelection:       []*workspace.Project{lib, app},
		ProjectsInUnknownState: []*workspace.Project{app},
	})
	if narrowed.IsProjectInUnknownState(lib) || !narrowed.IsProjectInUnknownState(app) {
		t.Error("explicit unknown state not honored")
	}
}

func TestNewGraph(t *testing.T) {
	a := newOp("a")
	b := newOp("b", a)
	c := newOp("c", a)
	d := newOp("d", c, b)

	g, err := NewGraph([]*Operation{d, c, b, a})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	if g.Len() != 4 {
		t.Fatalf("Len() = %d", g.Len())
	}
	if got := g.Dependencies(0); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Dependencies(d) = %v, want [1 2]", got)
	}
	if got := g.Consumers(3); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Consumers(a) = %v, want [1 2]", got)
	}

	var names []string
	for _, i := range g.TopologicalOrder() {
		names = append(names, g.Operation(i).Name)
	}
	if got := strings.Join(names, ","); got != "a,c,b,d" {
		t.Errorf("TopologicalOrder() = %s, want a,c,b,d", got)
	}
}

func TestNewGraph_Errors(t *testing.T) {
	t.Run("cycle names the path", func(t *testing.T) {
		a := newOp("a")
		b := newOp("b", a)
		c := newOp("c", b)
		a.AddDependency(c)
		free := newOp("free")

		_, err := NewGraph([]*Operation{free, a, b, c})
		if !errors.Is(err, errors.ErrDependencyCycle) {
			t.Fatalf("error = %v, want ErrDependencyCycle", err)
		}
		if !errors.IsConfigurationError(err) {
			t.Errorf("error is not a ConfigurationError: %v", err)
		}
		if !strings.Contains(err.Error(), "a -> c -> b -> a") {
			t.Errorf("error %q does not name the cycle", err)
		}
	})

	t.Run("self dependency", func(t *testing.T) {
		a := newOp("a")
		a.AddDependency(a)
		_, err := NewGraph([]*Operation{a})
		if !errors.Is(err, errors.ErrDependencyCycle) {
			t.Fatalf("error = %v, want ErrDependencyCycle", err)
		}
	})

	t.Run("dependency outside the set", func(t *testing.T) {
		outside := newOp("outside")
		a := newOp("a", outside)
		_, err := NewGraph([]*Operation{a})
		if !errors.Is(err, errors.ErrUnresolvedReference) {
			t.Fatalf("error = %v, want ErrUnresolvedReference", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewGraph([]*Operation{newOp("a"), newOp("a")})
		if !errors.Is(err, errors.ErrDuplicateName) {
			t.Fatalf("error = %v, want ErrDuplicateName", err)
		}
	})
}
