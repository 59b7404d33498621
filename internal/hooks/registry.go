// Package hooks implements the typed extensibility points plugins tap into.
//
// Each hook kind has a fixed dispatch routine:
//
//   - [SyncHook]: handlers run inline in registration order.
//   - [AsyncSeriesHook]: handlers are awaited one after another; no value is
//     threaded between them.
//   - [AsyncWaterfallHook]: each handler receives the previous handler's
//     result and returns the next accumulator.
//
// Registration order is the only ordering guarantee. A failing or panicking
// handler stops the dispatch and surfaces as an *errors.HookError to the
// caller, which treats it as fatal for the current cycle.
//
// A [Registry] is created per command invocation; there is no global state.
package hooks

import (
	"fmt"

	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/telemetry"
)

// Hook names.
const (
	CreateOperations         = "createOperations"
	BeforeExecuteOperations  = "beforeExecuteOperations"
	OnOperationStatusChanged = "onOperationStatusChanged"
	AfterExecuteOperations   = "afterExecuteOperations"
	WaitingForChanges        = "waitingForChanges"
	BeforeLog                = "beforeLog"
)

// ExecuteEvent is the payload of the before/after execution hooks. Handlers
// must treat Result as read-only.
type ExecuteEvent struct {
	Result  *operation.ExecutionResult
	Context *operation.CreateContext
}

// Registry is the set of hooks of one command invocation.
type Registry struct {
	// CreateOperations lets each plugin add to or transform the operation set.
	CreateOperations *AsyncWaterfallHook[*operation.Set, *operation.CreateContext]

	// BeforeExecuteOperations fires once per cycle before the first dispatch.
	BeforeExecuteOperations *AsyncSeriesHook[ExecuteEvent]

	// OnOperationStatusChanged fires once per status transition, inline on
	// the engine's scheduling loop.
	OnOperationStatusChanged *SyncHook[*operation.Record]

	// AfterExecuteOperations fires once per cycle after every operation is
	// terminal, or after a fatal error stopped the cycle.
	AfterExecuteOperations *AsyncSeriesHook[ExecuteEvent]

	// WaitingForChanges fires once per watch-mode idle period.
	WaitingForChanges *SyncHook[struct{}]

	// BeforeLog lets handlers augment the telemetry record before it is saved.
	BeforeLog *SyncHook[*telemetry.Record]
}

// NewRegistry creates a registry with every hook empty.
func NewRegistry() *Registry {
	return &Registry{
		CreateOperations:         NewAsyncWaterfallHook[*operation.Set, *operation.CreateContext](CreateOperations),
		BeforeExecuteOperations:  NewAsyncSeriesHook[ExecuteEvent](BeforeExecuteOperations),
		OnOperationStatusChanged: NewSyncHook[*operation.Record](OnOperationStatusChanged),
		AfterExecuteOperations:   NewAsyncSeriesHook[ExecuteEvent](AfterExecuteOperations),
		WaitingForChanges:        NewSyncHook[struct{}](WaitingForChanges),
		BeforeLog:                NewSyncHook[*telemetry.Record](BeforeLog),
	}
}

// Plugin registers handlers on a Registry.
type Plugin interface {
	Name() string
	Apply(r *Registry) error
}

// Apply applies plugins in order. The order is the tap order on every hook.
func (r *Registry) Apply(plugins ...Plugin) error {
	for _, p := range plugins {
		if err := p.Apply(r); err != nil {
			return fmt.Errorf("apply plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}
