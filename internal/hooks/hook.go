package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// tap is a registered handler.
type tap[F any] struct {
	name string
	fn   F
}

// taps is the ordered handler list shared by every hook kind.
type taps[F any] struct {
	hook string
	mu   sync.RWMutex
	list []tap[F]
}

func (t *taps[F]) add(name string, fn F) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = append(t.list, tap[F]{name: name, fn: fn})
}

// snapshot copies the handler list so a handler may tap the same hook
// without affecting the dispatch in progress.
func (t *taps[F]) snapshot() []tap[F] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]tap[F](nil), t.list...)
}

// Name returns the hook name.
func (t *taps[F]) Name() string { return t.hook }

// Len returns the number of registered handlers.
func (t *taps[F]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.list)
}

// IsUsed reports whether any handler is registered.
func (t *taps[F]) IsUsed() bool { return t.Len() > 0 }

// Names returns the handler names in registration order.
func (t *taps[F]) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, len(t.list))
	for i, tp := range t.list {
		names[i] = tp.name
	}
	return names
}

// invoke runs one handler, converting an error or a panic into a HookError.
func invoke(hook, name string, call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewHookError(hook, name, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	if callErr := call(); callErr != nil {
		return errors.NewHookError(hook, name, callErr)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Sync
// -----------------------------------------------------------------------------

// SyncHook calls its handlers inline, in registration order. Handlers must
// return promptly: they run on the caller's goroutine.
type SyncHook[T any] struct {
	taps[func(T) error]
}

// NewSyncHook creates an empty synchronous hook.
func NewSyncHook[T any](name string) *SyncHook[T] {
	return &SyncHook[T]{taps: taps[func(T) error]{hook: name}}
}

// Tap registers fn under name.
func (h *SyncHook[T]) Tap(name string, fn func(T) error) {
	h.add(name, fn)
}

// Call invokes every handler with v. The first failing handler stops the
// dispatch and its error is returned as a HookError.
func (h *SyncHook[T]) Call(v T) error {
	for _, tp := range h.snapshot() {
		if err := invoke(h.hook, tp.name, func() error { return tp.fn(v) }); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Async series
// -----------------------------------------------------------------------------

// AsyncSeriesHook awaits each handler in turn. No value is threaded between
// handlers.
type AsyncSeriesHook[T any] struct {
	taps[func(context.Context, T) error]
}

// NewAsyncSeriesHook creates an empty async-series hook.
func NewAsyncSeriesHook[T any](name string) *AsyncSeriesHook[T] {
	return &AsyncSeriesHook[T]{taps: taps[func(context.Context, T) error]{hook: name}}
}

// Tap registers fn under name.
func (h *AsyncSeriesHook[T]) Tap(name string, fn func(context.Context, T) error) {
	h.add(name, fn)
}

// Promise runs the handlers one after another. It stops at the first error,
// or before the next handler when ctx is done.
func (h *AsyncSeriesHook[T]) Promise(ctx context.Context, v T) error {
	for _, tp := range h.snapshot() {
		if err := ctx.Err(); err != nil {
			return errors.NewHookError(h.hook, tp.name, err)
		}
		if err := invoke(h.hook, tp.name, func() error { return tp.fn(ctx, v) }); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Async waterfall
// -----------------------------------------------------------------------------

// AsyncWaterfallHook threads an accumulator through its handlers: each one
// receives the previous handler's result plus a fixed argument.
type AsyncWaterfallHook[T, A any] struct {
	taps[func(context.Context, T, A) (T, error)]
}

// NewAsyncWaterfallHook creates an empty waterfall hook.
func NewAsyncWaterfallHook[T, A any](name string) *AsyncWaterfallHook[T, A] {
	return &AsyncWaterfallHook[T, A]{taps: taps[func(context.Context, T, A) (T, error)]{hook: name}}
}

// Tap registers fn under name.
func (h *AsyncWaterfallHook[T, A]) Tap(name string, fn func(context.Context, T, A) (T, error)) {
	h.add(name, fn)
}

// Promise passes initial through every handler in registration order and
// returns the last handler's output. On failure the accumulator as of the
// failing handler is returned with the error.
func (h *AsyncWaterfallHook[T, A]) Promise(ctx context.Context, initial T, arg A) (T, error) {
	acc := initial
	for _, tp := range h.snapshot() {
		if err := ctx.Err(); err != nil {
			return acc, errors.NewHookError(h.hook, tp.name, err)
		}
		var next T
		err := invoke(h.hook, tp.name, func() error {
			var callErr error
			next, callErr = tp.fn(ctx, acc, arg)
			return callErr
		})
		if err != nil {
			return acc, err
		}
		acc = next
	}
	return acc, nil
}
