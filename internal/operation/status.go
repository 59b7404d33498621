package operation

import (
	"fmt"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// Status represents the lifecycle state of one operation within one cycle.
type Status string

const (
	// StatusReady is the initial state: dependencies are not all satisfied yet,
	// or they are and the operation is waiting for a free execution slot.
	StatusReady Status = "READY"

	// StatusExecuting indicates the runner is doing the operation's work.
	StatusExecuting Status = "EXECUTING"

	// StatusSuccess indicates the runner finished without problems.
	StatusSuccess Status = "SUCCESS"

	// StatusSuccessWithWarning indicates the runner finished but reported warnings.
	StatusSuccessWithWarning Status = "SUCCESS WITH WARNINGS"

	// StatusFailure indicates the runner failed. Dependents become blocked.
	StatusFailure Status = "FAILURE"

	// StatusSkipped indicates the runner found the previous output still valid.
	StatusSkipped Status = "SKIPPED"

	// StatusFromCache indicates the runner restored its output from the build cache.
	StatusFromCache Status = "FROM CACHE"

	// StatusNoOp indicates there was no work to do.
	StatusNoOp Status = "NO OP"

	// StatusBlocked indicates the operation never ran because a dependency
	// failed or was itself blocked.
	StatusBlocked Status = "BLOCKED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status is final for the cycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusSuccessWithWarning, StatusFailure,
		StatusSkipped, StatusFromCache, StatusNoOp, StatusBlocked:
		return true
	default:
		return false
	}
}

// SatisfiesDependents returns true if operations depending on one in this
// status may start.
func (s Status) SatisfiesDependents() bool {
	switch s {
	case StatusSuccess, StatusSuccessWithWarning, StatusSkipped, StatusFromCache, StatusNoOp:
		return true
	default:
		return false
	}
}

// BlocksDependents returns true if operations depending on one in this
// status must be blocked.
func (s Status) BlocksDependents() bool {
	return s == StatusFailure || s == StatusBlocked
}

// IsRunnerResult returns true if a runner may finish with this status.
func (s Status) IsRunnerResult() bool {
	return s.IsTerminal() && s != StatusBlocked
}

// Category groups statuses for reporting and colorization.
type Category int

const (
	CategoryNeutral Category = iota
	CategorySuccess
	CategoryWarning
	CategoryFailure
	CategorySkipped
)

// Category returns the reporting category of the status.
func (s Status) Category() Category {
	switch s {
	case StatusSuccess:
		return CategorySuccess
	case StatusSuccessWithWarning:
		return CategoryWarning
	case StatusFailure, StatusBlocked:
		return CategoryFailure
	case StatusSkipped, StatusFromCache, StatusNoOp:
		return CategorySkipped
	default:
		return CategoryNeutral
	}
}

// CanTransition reports whether the state machine allows from -> to.
//
//	READY     -> EXECUTING | BLOCKED
//	EXECUTING -> any runner result
//
// Terminal statuses never transition again within a cycle.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusReady:
		return to == StatusExecuting || to == StatusBlocked
	case StatusExecuting:
		return to.IsRunnerResult()
	default:
		return false
	}
}

// ValidateTransition returns an error wrapping errors.ErrInvalidTransition
// when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, to)
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusReady, StatusExecuting,
		StatusSuccess, StatusSuccessWithWarning, StatusFailure,
		StatusSkipped, StatusFromCache, StatusNoOp, StatusBlocked,
	}
}
