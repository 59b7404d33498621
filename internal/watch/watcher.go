// Package watch reports which projects changed on disk, for watch mode.
//
// A [Watcher] adds every project folder and its subdirectories to an
// fsnotify watcher, drops events for ignored paths, maps each remaining
// event to the project owning the path and debounces bursts of events
// (editors and build tools write several files at once) into one change set.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/phasebuild/internal/changes"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// DefaultDebounce is the quiet period after the last event before a change
// set is reported.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Root is the directory ignore patterns are relative to. Defaults to the
	// current directory.
	Root     string
	Ignore   []string
	Debounce time.Duration
	Logger   *logging.Logger
}

// Watcher watches project folders for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	ignore   *changes.Matcher
	debounce time.Duration
	logger   *logging.Logger

	// projects sorted by descending folder length, so nested projects win.
	projects []*workspace.Project

	mu      sync.Mutex
	changed map[string]*workspace.Project
	signal  chan struct{}
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates a watcher for projects. Call Start to begin delivering events.
func New(projects []*workspace.Project, opts Options) (*Watcher, error) {
	ignore, err := changes.NewMatcher(opts.Ignore)
	if err != nil {
		return nil, err
	}
	root := opts.Root
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sorted := append([]*workspace.Project(nil), projects...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Dir()) > len(sorted[j].Dir())
	})

	w := &Watcher{
		watcher:  fw,
		root:     root,
		ignore:   ignore,
		debounce: debounce,
		logger:   logger,
		projects: sorted,
		changed:  make(map[string]*workspace.Project),
		signal:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}

	for _, p := range projects {
		if err := w.watchDirRecursive(p.Dir()); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// watchDirRecursive adds dir and every non-ignored subdirectory.
func (w *Watcher) watchDirRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip unreadable entries, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	if isDir {
		return w.ignore.MatchDir(rel)
	}
	return w.ignore.Match(rel)
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Wait blocks until at least one project changed and returns the changed
// projects sorted by name. Changes that happened since the previous Wait
// returned are reported immediately.
func (w *Watcher) Wait(ctx context.Context) ([]*workspace.Project, error) {
	for {
		if changed := w.drain(); len(changed) > 0 {
			return changed, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.stopCh:
			return nil, context.Canceled
		case <-w.signal:
		}
	}
}

func (w *Watcher) drain() []*workspace.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changed) == 0 {
		return nil
	}
	out := make([]*workspace.Project, 0, len(w.changed))
	for _, p := range w.changed {
		out = append(out, p)
	}
	w.changed = make(map[string]*workspace.Project)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// watchLoop collects events and publishes them after the debounce period.
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pending := make(map[string]*workspace.Project)

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			p := w.handleEvent(event)
			if p == nil {
				continue
			}
			pending[p.Name] = p
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if len(pending) == 0 {
				continue
			}
			w.mu.Lock()
			for name, p := range pending {
				w.changed[name] = p
			}
			w.mu.Unlock()
			pending = make(map[string]*workspace.Project)

			select {
			case w.signal <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleEvent returns the project an event belongs to, or nil when the
// event is ignored. New directories are watched as they appear.
func (w *Watcher) handleEvent(event fsnotify.Event) *workspace.Project {
	path := event.Name
	isDir := false
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.ignored(path, isDir) {
		return nil
	}
	if isDir {
		if err := w.watchDirRecursive(path); err != nil {
			w.logger.Warn("cannot watch new directory", "path", path, "error", err)
		}
	}

	p := w.projectFor(path)
	if p != nil {
		w.logger.Debug("file changed", "path", path, "project", p.Name, "op", event.Op.String())
	}
	return p
}

// projectFor returns the innermost project whose folder contains path.
func (w *Watcher) projectFor(path string) *workspace.Project {
	for _, p := range w.projects {
		dir := p.Dir()
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return p
		}
	}
	return nil
}
