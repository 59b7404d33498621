package config

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "execution.parallelism")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// parallelismRegex accepts "max", a positive integer, or a positive percentage
var parallelismRegex = regexp.MustCompile(`^(max|[1-9][0-9]*%?)$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateTimeline()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateExecution validates the ExecutionConfig
func (c *Config) validateExecution() []ValidationError {
	var errors []ValidationError

	p := strings.TrimSpace(c.Execution.Parallelism)
	if p == "" {
		return errors
	}
	if !parallelismRegex.MatchString(p) {
		errors = append(errors, ValidationError{
			Field:   "execution.parallelism",
			Value:   c.Execution.Parallelism,
			Message: `must be "max", a positive integer, or a percentage like "50%"`,
		})
		return errors
	}
	if pct, ok := strings.CutSuffix(p, "%"); ok {
		if n, err := strconv.Atoi(pct); err != nil || n > 100 {
			errors = append(errors, ValidationError{
				Field:   "execution.parallelism",
				Value:   c.Execution.Parallelism,
				Message: "percentage cannot exceed 100%",
			})
		}
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	// Debounce bounds (0 means use the watcher default)
	const maxDebounceMs = 60_000
	if c.Watch.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if c.Watch.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDebounceMs),
		})
	}

	for i, pattern := range c.Watch.Ignore {
		field := fmt.Sprintf("watch.ignore[%d]", i)
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   pattern,
				Message: "pattern cannot be empty",
			})
			continue
		}
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validateTimeline validates the TimelineConfig
func (c *Config) validateTimeline() []ValidationError {
	var errors []ValidationError

	// 0 means terminal width; anything else must leave room for the chart
	const minWidth = 40
	if c.Timeline.MaxWidth != 0 && c.Timeline.MaxWidth < minWidth {
		errors = append(errors, ValidationError{
			Field:   "timeline.max_width",
			Value:   c.Timeline.MaxWidth,
			Message: fmt.Sprintf("must be 0 or at least %d columns", minWidth),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validatePaths validates the PathsConfig and the other directory settings
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"paths.workspace_file", c.Paths.WorkspaceFile},
		{"paths.state_dir", c.Paths.StateDir},
		{"telemetry.dir", c.Telemetry.Dir},
		{"logging.dir", c.Logging.Dir},
	}
	for _, p := range paths {
		errors = append(errors, validatePath(p.field, p.value)...)
	}

	if strings.TrimSpace(c.Paths.WorkspaceFile) == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.workspace_file",
			Value:   c.Paths.WorkspaceFile,
			Message: "cannot be empty",
		})
	}

	return errors
}

func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
