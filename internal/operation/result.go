package operation

import (
	"bytes"
	"fmt"
	"time"
)

// Stopwatch holds the start and end timestamps of one execution. Both are
// zero until the operation starts; EndTime is never before StartTime.
type Stopwatch struct {
	StartTime time.Time
	EndTime   time.Time
}

// HasStarted reports whether a start timestamp was recorded.
func (s Stopwatch) HasStarted() bool {
	return !s.StartTime.IsZero()
}

// IsComplete reports whether both timestamps were recorded.
func (s Stopwatch) IsComplete() bool {
	return !s.StartTime.IsZero() && !s.EndTime.IsZero()
}

// Duration returns EndTime - StartTime, or 0 when incomplete.
func (s Stopwatch) Duration() time.Duration {
	if !s.IsComplete() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Record is the per-cycle execution state of one operation.
//
// Only the execution engine mutates a Record. Hook handlers and reporters
// read it through the accessors.
type Record struct {
	Operation *Operation

	status    Status
	err       error
	stopwatch Stopwatch
	output    bytes.Buffer
}

func newRecord(op *Operation) *Record {
	return &Record{Operation: op, status: StatusReady}
}

// Status returns the current status.
func (r *Record) Status() Status { return r.status }

// Error returns the runner error recorded with a FAILURE, if any.
func (r *Record) Error() error { return r.err }

// Stopwatch returns the execution timestamps.
func (r *Record) Stopwatch() Stopwatch { return r.stopwatch }

// Output returns the console output collected while the operation ran.
func (r *Record) Output() string { return r.output.String() }

// OutputWriter returns the writer the runner's output is collected into.
// It must only be written by the single worker executing the operation.
func (r *Record) OutputWriter() *bytes.Buffer { return &r.output }

// Transition moves the record to status to if the state machine allows it.
func (r *Record) Transition(to Status) error {
	if err := ValidateTransition(r.status, to); err != nil {
		return fmt.Errorf("operation %q: %w", r.Operation.Name, err)
	}
	r.status = to
	return nil
}

// Start records the start timestamp.
func (r *Record) Start(now time.Time) {
	r.stopwatch.StartTime = now
	r.stopwatch.EndTime = time.Time{}
}

// Stop records the end timestamp, clamped so it is never before the start.
func (r *Record) Stop(now time.Time) {
	if now.Before(r.stopwatch.StartTime) {
		now = r.stopwatch.StartTime
	}
	r.stopwatch.EndTime = now
}

// SetError records the runner error.
func (r *Record) SetError(err error) { r.err = err }

// ExecutionResult is the aggregate outcome of one cycle: one Record per
// operation, in graph order, plus the overall status.
type ExecutionResult struct {
	records []*Record
	byOp    map[*Operation]*Record
	status  Status
	err     error
}

// NewExecutionResult creates a result with every operation READY.
func NewExecutionResult(ops []*Operation) *ExecutionResult {
	r := &ExecutionResult{
		records: make([]*Record, 0, len(ops)),
		byOp:    make(map[*Operation]*Record, len(ops)),
		status:  StatusReady,
	}
	for _, op := range ops {
		rec := newRecord(op)
		r.records = append(r.records, rec)
		r.byOp[op] = rec
	}
	return r
}

// Records returns every record in graph order.
func (r *ExecutionResult) Records() []*Record {
	return append([]*Record(nil), r.records...)
}

// Record returns the record of op.
func (r *ExecutionResult) Record(op *Operation) (*Record, bool) {
	rec, ok := r.byOp[op]
	return rec, ok
}

// Len returns the number of records.
func (r *ExecutionResult) Len() int {
	return len(r.records)
}

// Status returns the overall status. It is READY until Finish is called.
func (r *ExecutionResult) Status() Status {
	return r.status
}

// Err returns the fatal cycle error, if the cycle was aborted or never started.
func (r *ExecutionResult) Err() error {
	return r.err
}

// Succeeded reports whether the cycle finished without failed or blocked
// operations and without a fatal error.
func (r *ExecutionResult) Succeeded() bool {
	return r.status != StatusFailure && r.status != StatusReady
}

// Counts returns the number of records per status.
func (r *ExecutionResult) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, rec := range r.records {
		counts[rec.status]++
	}
	return counts
}

// Finish computes the overall status. A fatal error, a FAILURE or BLOCKED
// operation, or an operation left unfinished makes the cycle a FAILURE even
// when independent operations succeeded.
func (r *ExecutionResult) Finish(fatal error) {
	r.err = fatal
	if fatal != nil {
		r.status = StatusFailure
		return
	}
	if len(r.records) == 0 {
		r.status = StatusNoOp
		return
	}

	status := StatusSuccess
	for _, rec := range r.records {
		switch {
		case rec.status.BlocksDependents(), !rec.status.IsTerminal():
			r.status = StatusFailure
			return
		case rec.status == StatusSuccessWithWarning:
			status = StatusSuccessWithWarning
		}
	}
	r.status = status
}
