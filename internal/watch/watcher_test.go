package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

func newTestWatcher(t *testing.T, ignore ...string) (*Watcher, string, *workspace.Project, *workspace.Project) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"app/src", "lib/src", "lib/dist"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	app := workspace.NewProject("app", filepath.Join(root, "app"))
	lib := workspace.NewProject("lib", filepath.Join(root, "lib"))

	w, err := New([]*workspace.Project{app, lib}, Options{
		Root:     root,
		Ignore:   ignore,
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	w.Start()
	return w, root, app, lib
}

func TestWatcher_ReportsChangedProject(t *testing.T) {
	w, root, _, lib := newTestWatcher(t)

	if err := os.WriteFile(filepath.Join(root, "lib", "src", "a.go"), []byte("package a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changed, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(changed) != 1 || changed[0] != lib {
		t.Fatalf("changed = %v, want [lib]", changed)
	}
}

func TestWatcher_IgnoredPathsAreDropped(t *testing.T) {
	w, root, _, _ := newTestWatcher(t, "lib/dist/**")

	if err := os.WriteFile(filepath.Join(root, "lib", "dist", "out.js"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if changed, err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, %v; want deadline exceeded", changed, err)
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	w, root, app, _ := newTestWatcher(t)

	nested := filepath.Join(root, "app", "src", "pkg")
	if err := os.Mkdir(nested, 0755); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait after mkdir: %v", err)
	}

	// Give the loop a moment to add the directory before writing into it.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(nested, "b.go"), []byte("package pkg\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait after write: %v", err)
	}
	if len(changed) != 1 || changed[0] != app {
		t.Fatalf("changed = %v, want [app]", changed)
	}
}

func TestWatcher_CloseUnblocksWait(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)

	done := make(chan error, 1)
	go func() {
		_, err := w.Wait(context.Background())
		done <- err
	}()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait after Close = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestProjectFor_PrefersNestedProject(t *testing.T) {
	root := filepath.FromSlash("/repo")
	outer := workspace.NewProject("root", root)
	inner := workspace.NewProject("inner", filepath.Join(root, "packages", "inner"))
	w := &Watcher{projects: []*workspace.Project{inner, outer}}

	tests := []struct {
		path string
		want *workspace.Project
	}{
		{filepath.Join(root, "packages", "inner", "x.go"), inner},
		{filepath.Join(root, "packages", "inner2", "x.go"), outer},
		{filepath.Join(root, "README.md"), outer},
		{filepath.FromSlash("/elsewhere/file"), nil},
	}
	for _, tt := range tests {
		if got := w.projectFor(tt.path); got != tt.want {
			t.Errorf("projectFor(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDrain_SortsByName(t *testing.T) {
	zeta := workspace.NewProject("zeta", filepath.FromSlash("/repo/a"))
	alpha := workspace.NewProject("alpha", filepath.FromSlash("/repo/z"))
	w := &Watcher{changed: map[string]*workspace.Project{"zeta": zeta, "alpha": alpha}}

	got := w.drain()
	if len(got) != 2 || got[0] != alpha || got[1] != zeta {
		t.Fatalf("drain() = %v, want [alpha zeta]", got)
	}
	if again := w.drain(); again != nil {
		t.Errorf("second drain() = %v, want nil", again)
	}
}
