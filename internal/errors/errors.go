// Package errors provides centralized error definitions and error handling utilities
// for phasebuild. It defines sentinel errors, domain-specific error types for the
// three failure families the build core distinguishes, and classification helpers.
//
// # Error Families
//
// Configuration errors (ConfigurationError) are detected before anything is
// scheduled: dependency cycles, references to unknown phases, tasks, or projects.
// They are fatal to the cycle and name the offending identifiers.
//
// Hook errors (HookError) are raised when a plugin's hook handler fails. Hooks can
// mutate shared build state, so a failing handler is fatal to the current cycle.
//
// Operation errors (OperationError) describe a runner that could not do its work.
// They are never raised out of the engine; they are recorded on the operation's
// execution record next to its Failure status.
//
// # Usage
//
//	err := errors.NewConfigurationError("phase dependency cycle", errors.ErrDependencyCycle).
//		WithIdentifiers("build", "test", "build")
//
//	if errors.Is(err, errors.ErrDependencyCycle) { ... }
//
//	var hookErr *errors.HookError
//	if errors.As(err, &hookErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Graph and configuration sentinel errors
var (
	// ErrDependencyCycle indicates a circular dependency between operations,
	// phases, tasks, or projects.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrUnresolvedReference indicates a reference to an unknown phase, task, or project.
	ErrUnresolvedReference = New("unresolved reference")
	// ErrDuplicateName indicates two definitions share a name that must be unique.
	ErrDuplicateName = New("duplicate name")
)

// Execution sentinel errors
var (
	// ErrHookFailed indicates that a hook handler returned an error or panicked.
	ErrHookFailed = New("hook handler failed")
	// ErrInvalidTransition indicates a status transition the state machine forbids.
	ErrInvalidTransition = New("invalid status transition")
	// ErrCycleAborted indicates that a cycle stopped scheduling before every
	// operation reached a terminal status.
	ErrCycleAborted = New("cycle aborted")
	// ErrRunnerFailed indicates that a runner could not complete its work.
	ErrRunnerFailed = New("runner failed")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates that a named resource does not exist.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BuildError is the base interface for all phasebuild errors.
type BuildError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigurationError represents an invalid phase/task/project graph. It is
// detected before scheduling and no operation executes when one is returned.
//
// Example:
//
//	err := errors.NewConfigurationError("operation dependency cycle", errors.ErrDependencyCycle).
//		WithIdentifiers("a (build)", "b (build)", "a (build)")
//	fmt.Println(err) // "configuration error [a (build) -> b (build) -> a (build)]: operation dependency cycle: dependency cycle detected"
type ConfigurationError struct {
	baseError
	Identifiers []string
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithIdentifiers records the offending names. For cycles the identifiers are
// the cycle path, closed by repeating the first element.
func (e *ConfigurationError) WithIdentifiers(ids ...string) *ConfigurationError {
	e.Identifiers = append(e.Identifiers, ids...)
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Identifiers) > 0 {
		sep := ", "
		if Is(e.cause, ErrDependencyCycle) {
			sep = " -> "
		}
		parts = append(parts, strings.Join(e.Identifiers, sep))
	}
	return e.format("configuration error", parts)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	return e.cause != nil && Is(e.cause, target)
}

// HookError represents a failing hook handler. It always matches ErrHookFailed.
//
// Example:
//
//	err := errors.NewHookError("afterExecuteOperations", "timeline", cause)
type HookError struct {
	baseError
	Hook string
	Tap  string
}

// NewHookError creates a new HookError for the named hook and tap.
func NewHookError(hook, tap string, cause error) *HookError {
	return &HookError{
		baseError: baseError{
			message:    "handler failed",
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Hook: hook,
		Tap:  tap,
	}
}

// Error returns the formatted error message.
func (e *HookError) Error() string {
	var parts []string
	if e.Hook != "" {
		parts = append(parts, fmt.Sprintf("hook=%s", e.Hook))
	}
	if e.Tap != "" {
		parts = append(parts, fmt.Sprintf("tap=%s", e.Tap))
	}
	return e.format("hook error", parts)
}

// Is checks if this error matches the target.
func (e *HookError) Is(target error) bool {
	if _, ok := target.(*HookError); ok {
		return true
	}
	if target == ErrHookFailed {
		return true
	}
	return e.cause != nil && Is(e.cause, target)
}

// OperationError represents a runner that could not perform its work. It is
// recorded on the operation's execution record, never raised from a cycle.
type OperationError struct {
	baseError
	Operation string
}

// NewOperationError creates a new OperationError for the named operation.
func NewOperationError(operation string, cause error) *OperationError {
	return &OperationError{
		baseError: baseError{
			message:    "operation failed",
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *OperationError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.Operation))
	}
	return e.format("operation error", parts)
}

// Is checks if this error matches the target.
func (e *OperationError) Is(target error) bool {
	if _, ok := target.(*OperationError); ok {
		return true
	}
	if target == ErrRunnerFailed {
		return true
	}
	return e.cause != nil && Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var buildErr BuildError
	if As(err, &buildErr) {
		return buildErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BuildError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var buildErr BuildError
	if As(err, &buildErr) {
		return buildErr.Severity()
	}
	return SeverityError
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return As(err, &cfgErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
