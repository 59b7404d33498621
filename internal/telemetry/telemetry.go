// Package telemetry holds the per-cycle telemetry record and its file store.
//
// The orchestrator builds a [Record] after every cycle, hands it to the
// beforeLog hook so plugins can attach extra data, then persists it with a
// [Store]. Records are plain JSON documents, one file per cycle.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/operation"
)

// OperationRecord is the telemetry view of one operation.
type OperationRecord struct {
	Name              string   `json:"name"`
	Phase             string   `json:"phase,omitempty"`
	Project           string   `json:"project,omitempty"`
	Result            string   `json:"result"`
	StartTimestampMs  int64    `json:"startTimestampMs,omitempty"`
	EndTimestampMs    int64    `json:"endTimestampMs,omitempty"`
	DurationInSeconds float64  `json:"durationInSeconds"`
	Dependencies      []string `json:"dependencies,omitempty"`
}

// Machine describes the host that ran the cycle.
type Machine struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Cores    int    `json:"cores"`
}

// Record is the telemetry document for one cycle. Handlers of the beforeLog
// hook may change any field, most often ExtraData.
type Record struct {
	Name              string            `json:"name"`
	Cycle             int               `json:"cycle"`
	Result            string            `json:"result"`
	Timestamp         time.Time         `json:"timestamp"`
	DurationInSeconds float64           `json:"durationInSeconds"`
	Machine           Machine           `json:"machine"`
	Operations        []OperationRecord `json:"operations,omitempty"`
	ExtraData         map[string]string `json:"extraData,omitempty"`
}

// Build assembles a record from a finished cycle. Silent operations are left
// out.
func Build(name string, cycle int, result *operation.ExecutionResult, elapsed time.Duration, now time.Time) *Record {
	rec := &Record{
		Name:              name,
		Cycle:             cycle,
		Result:            result.Status().String(),
		Timestamp:         now.UTC(),
		DurationInSeconds: elapsed.Seconds(),
		Machine: Machine{
			Platform: runtime.GOOS,
			Arch:     runtime.GOARCH,
			Cores:    runtime.NumCPU(),
		},
		ExtraData: map[string]string{},
	}

	for _, r := range result.Records() {
		op := r.Operation
		if op.Silent() {
			continue
		}
		or := OperationRecord{
			Name:              op.Name,
			Phase:             op.PhaseName(),
			Result:            r.Status().String(),
			DurationInSeconds: r.Stopwatch().Duration().Seconds(),
		}
		if op.Project != nil {
			or.Project = op.Project.Name
		}
		if sw := r.Stopwatch(); sw.IsComplete() {
			or.StartTimestampMs = sw.StartTime.UnixMilli()
			or.EndTimestampMs = sw.EndTime.UnixMilli()
		}
		for _, dep := range op.Dependencies() {
			if !dep.Silent() {
				or.Dependencies = append(or.Dependencies, dep.Name)
			}
		}
		sort.Strings(or.Dependencies)
		rec.Operations = append(rec.Operations, or)
	}
	return rec
}

// Store writes records into a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save writes rec as telemetry_<timestamp>_<cycle>.json and returns the
// path. The write is atomic: data goes to a temporary file that is renamed
// into place.
func (s *Store) Save(rec *Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create telemetry dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal telemetry: %w", err)
	}

	name := fmt.Sprintf("telemetry_%s_%d.json", rec.Timestamp.UTC().Format("2006-01-02T15-04-05.000Z"), rec.Cycle)
	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return target, nil
}

// Load reads a record written by Save.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read telemetry file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal telemetry: %w", err)
	}
	return &rec, nil
}
