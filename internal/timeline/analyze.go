// Package timeline reconstructs how a finished cycle actually used its
// workers and renders it as a proportional text chart.
//
// [Analyze] works on the stopwatches of a finished result: it reports the
// total work, the wall-clock span, the realized parallelism and the time
// spent per phase. [Render] prints that analysis.
package timeline

import (
	"sort"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/operation"
)

// Interval is one timed operation.
type Interval struct {
	Name   string
	Phase  string
	Status operation.Status
	Start  time.Time
	End    time.Time
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// PhaseDuration is the summed duration of the operations of one phase.
type PhaseDuration struct {
	Phase    string
	Duration time.Duration
}

// Analysis is the timing summary of a cycle.
type Analysis struct {
	// Intervals are the eligible operations sorted by start time.
	Intervals    []Interval
	AllStart     time.Time
	AllEnd       time.Time
	AllDuration  time.Duration
	WorkDuration time.Duration
	// MaxParallelism is the smallest number of workers that could have
	// produced the observed schedule.
	MaxParallelism     int
	AverageParallelism float64
	// Phases lists phase totals in order of each phase's first start.
	Phases []PhaseDuration
}

// Empty reports whether no operation was eligible.
func (a *Analysis) Empty() bool {
	return len(a.Intervals) == 0
}

// Intervals extracts the eligible operations of result: non-silent
// operations whose stopwatch has both timestamps.
func Intervals(result *operation.ExecutionResult) []Interval {
	var out []Interval
	for _, rec := range result.Records() {
		op := rec.Operation
		sw := rec.Stopwatch()
		if op.Silent() || !sw.IsComplete() {
			continue
		}
		out = append(out, Interval{
			Name:   op.Name,
			Phase:  op.PhaseName(),
			Status: rec.Status(),
			Start:  sw.StartTime,
			End:    sw.EndTime,
		})
	}
	return out
}

// Analyze summarizes the eligible operations of result.
func Analyze(result *operation.ExecutionResult) *Analysis {
	return AnalyzeIntervals(Intervals(result))
}

// AnalyzeIntervals summarizes intervals. The input slice is not modified.
func AnalyzeIntervals(intervals []Interval) *Analysis {
	a := &Analysis{Intervals: append([]Interval(nil), intervals...)}
	if len(a.Intervals) == 0 {
		return a
	}

	sort.SliceStable(a.Intervals, func(i, j int) bool {
		return a.Intervals[i].Start.Before(a.Intervals[j].Start)
	})

	a.AllStart = a.Intervals[0].Start
	a.AllEnd = a.Intervals[0].End
	phaseIndex := make(map[string]int)
	for _, iv := range a.Intervals {
		if iv.End.After(a.AllEnd) {
			a.AllEnd = iv.End
		}
		a.WorkDuration += iv.Duration()

		if iv.Phase == "" {
			continue
		}
		idx, ok := phaseIndex[iv.Phase]
		if !ok {
			idx = len(a.Phases)
			phaseIndex[iv.Phase] = idx
			a.Phases = append(a.Phases, PhaseDuration{Phase: iv.Phase})
		}
		a.Phases[idx].Duration += iv.Duration()
	}
	a.AllDuration = a.AllEnd.Sub(a.AllStart)

	a.MaxParallelism = MaxParallelism(a.Intervals)
	if a.AllDuration > 0 {
		a.AverageParallelism = float64(a.WorkDuration) / float64(a.AllDuration)
	}
	return a
}

// MaxParallelism returns the minimum number of executors able to run the
// intervals as observed. Intervals are taken in start order and each is
// assigned to the lowest-numbered executor that is free by its start, or to
// a new executor when none is.
//
// Zero-length intervals occupy no executor time and are not counted; a
// restored cache entry next to a long compile does not raise the result.
func MaxParallelism(intervals []Interval) int {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Duration() > 0 {
			sorted = append(sorted, iv)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var freeAt []time.Time
	for _, iv := range sorted {
		assigned := false
		for i, free := range freeAt {
			if !free.After(iv.Start) {
				freeAt[i] = iv.End
				assigned = true
				break
			}
		}
		if !assigned {
			freeAt = append(freeAt, iv.End)
		}
	}
	return len(freeAt)
}
