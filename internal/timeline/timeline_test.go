package timeline

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/phasebuild/internal/operation"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return epoch.Add(time.Duration(sec * float64(time.Second)))
}

func iv(name string, start, end float64) Interval {
	return Interval{Name: name, Status: operation.StatusSuccess, Start: at(start), End: at(end)}
}

// bruteForceOverlap counts, at every start instant, the intervals covering
// it, treating intervals as [start, end).
func bruteForceOverlap(intervals []Interval) int {
	best := 0
	for _, at := range intervals {
		n := 0
		for _, other := range intervals {
			if !other.Start.After(at.Start) && other.End.After(at.Start) {
				n++
			}
		}
		best = max(best, n)
	}
	return best
}

func TestMaxParallelism(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		want      int
	}{
		{"empty", nil, 0},
		{"single", []Interval{iv("a", 0, 1)}, 1},
		{"back to back", []Interval{iv("a", 0, 1), iv("b", 1, 2), iv("c", 2, 3)}, 1},
		{"gaps", []Interval{iv("a", 0, 1), iv("b", 5, 6), iv("c", 10, 11)}, 1},
		{"all overlap", []Interval{iv("a", 0, 10), iv("b", 1, 9), iv("c", 2, 8), iv("d", 3, 7)}, 4},
		{"same span", []Interval{iv("a", 0, 5), iv("b", 0, 5), iv("c", 0, 5)}, 3},
		{"executor reuse", []Interval{iv("a", 0, 4), iv("b", 1, 2), iv("c", 2, 3), iv("d", 3, 5)}, 2},
		{"unsorted input", []Interval{iv("c", 2, 3), iv("a", 0, 3), iv("b", 1, 4)}, 3},
		{"zero length ignored", []Interval{iv("a", 0, 10), iv("cached", 5, 5), iv("hit", 5, 5)}, 1},
		{"only zero length", []Interval{iv("a", 3, 3), iv("b", 3, 3)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxParallelism(tt.intervals); got != tt.want {
				t.Errorf("MaxParallelism() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMaxParallelism_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := range 200 {
		n := 1 + rng.Intn(25)
		intervals := make([]Interval, n)
		for i := range intervals {
			start := float64(rng.Intn(50))
			intervals[i] = iv("x", start, start+float64(1+rng.Intn(15)))
		}

		got := MaxParallelism(intervals)
		if want := bruteForceOverlap(intervals); got != want {
			t.Fatalf("trial %d: MaxParallelism() = %d, brute force = %d", trial, got, want)
		}

		a := AnalyzeIntervals(intervals)
		if a.AverageParallelism < 0 || a.AverageParallelism > float64(a.MaxParallelism)+1e-9 {
			t.Fatalf("trial %d: average %.3f outside [0, %d]", trial, a.AverageParallelism, a.MaxParallelism)
		}
	}
}

func TestAnalyzeIntervals_Scenario(t *testing.T) {
	a := AnalyzeIntervals([]Interval{
		{Name: "B", Phase: "build", Status: operation.StatusSuccess, Start: at(3), End: at(10)},
		{Name: "A", Phase: "build", Status: operation.StatusSuccess, Start: at(0), End: at(3)},
		{Name: "C", Phase: "test", Status: operation.StatusSuccess, Start: at(1), End: at(4)},
	})

	if a.WorkDuration != 13*time.Second {
		t.Errorf("WorkDuration = %v, want 13s", a.WorkDuration)
	}
	if a.AllDuration != 10*time.Second {
		t.Errorf("AllDuration = %v, want 10s", a.AllDuration)
	}
	if a.MaxParallelism != 2 {
		t.Errorf("MaxParallelism = %d, want 2", a.MaxParallelism)
	}
	if a.AverageParallelism < 1.299 || a.AverageParallelism > 1.301 {
		t.Errorf("AverageParallelism = %v, want 1.3", a.AverageParallelism)
	}

	var order []string
	for _, i := range a.Intervals {
		order = append(order, i.Name)
	}
	if strings.Join(order, "") != "ACB" {
		t.Errorf("interval order = %v, want start order A C B", order)
	}

	if len(a.Phases) != 2 || a.Phases[0].Phase != "build" || a.Phases[0].Duration != 10*time.Second ||
		a.Phases[1].Phase != "test" || a.Phases[1].Duration != 3*time.Second {
		t.Errorf("Phases = %+v", a.Phases)
	}
}

func TestAnalyzeIntervals_Degenerate(t *testing.T) {
	empty := AnalyzeIntervals(nil)
	if !empty.Empty() || empty.MaxParallelism != 0 || empty.AverageParallelism != 0 {
		t.Errorf("empty analysis = %+v", empty)
	}

	zero := AnalyzeIntervals([]Interval{iv("a", 2, 2), iv("b", 2, 2)})
	if zero.AllDuration != 0 || zero.AverageParallelism != 0 {
		t.Errorf("zero-span analysis = %+v", zero)
	}
}

type timedRunner struct{ silent bool }

func (timedRunner) Execute(context.Context, *operation.RunnerContext) (operation.Status, error) {
	return operation.StatusSuccess, nil
}

func (r timedRunner) Silent() bool { return r.silent }

func TestAnalyze_FiltersSilentAndUntimed(t *testing.T) {
	build := &workspace.Phase{Name: "build"}
	visible := operation.New(operation.Options{Name: "lib (build)", Phase: build, Runner: timedRunner{}})
	silent := operation.New(operation.Options{Name: "lib (build:clean)", Phase: build, Runner: timedRunner{silent: true}})
	blocked := operation.New(operation.Options{Name: "app (build)", Phase: build, Runner: timedRunner{}})

	res := operation.NewExecutionResult([]*operation.Operation{visible, silent, blocked})
	for _, o := range []*operation.Operation{visible, silent} {
		rec, _ := res.Record(o)
		_ = rec.Transition(operation.StatusExecuting)
		rec.Start(at(0))
		rec.Stop(at(2))
		_ = rec.Transition(operation.StatusSuccess)
	}
	rec, _ := res.Record(blocked)
	_ = rec.Transition(operation.StatusBlocked)

	a := Analyze(res)
	if len(a.Intervals) != 1 || a.Intervals[0].Name != "lib (build)" || a.Intervals[0].Phase != "build" {
		t.Errorf("Intervals = %+v", a.Intervals)
	}
}

func TestRender_Scenario(t *testing.T) {
	a := AnalyzeIntervals([]Interval{
		{Name: "A", Phase: "build", Status: operation.StatusSuccess, Start: at(0), End: at(3)},
		{Name: "B", Phase: "build", Status: operation.StatusFailure, Start: at(3), End: at(10)},
		{Name: "C", Status: operation.StatusFromCache, Start: at(1), End: at(4)},
	})

	var buf bytes.Buffer
	if err := Render(&buf, a, Options{Width: 40}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	// chartWidth = 40 - 1 - 4 - 4 = 31 -> 32 columns per bar.
	wantRows := []string{
		"A " + strings.Repeat("#", 10) + strings.Repeat("-", 22) + " 3.0s",
		"C " + strings.Repeat("-", 3) + strings.Repeat("%", 10) + strings.Repeat("-", 19) + " 3.0s",
		"B " + strings.Repeat("-", 9) + strings.Repeat("!", 23) + " 7.0s",
	}
	for _, row := range wantRows {
		if !strings.Contains(out, row+"\n") {
			t.Errorf("output missing row %q:\n%s", row, out)
		}
	}

	for _, want := range []string{
		strings.Repeat("=", 40) + "\n",
		"LEGEND:",
		"Total Work: 13.0s\n",
		"Wall Clock: 10.0s\n",
		"Max Parallelism Used: 2\n",
		"Average Parallelism: 1.3\n",
		"BY PHASE:\n  build 10.0s\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain writer received ANSI escapes")
	}
}

func TestRender_WarningsHaveOwnGlyph(t *testing.T) {
	a := AnalyzeIntervals([]Interval{
		{Name: "W", Status: operation.StatusSuccessWithWarning, Start: at(0), End: at(2)},
		{Name: "F", Status: operation.StatusFailure, Start: at(0), End: at(2)},
	})

	var buf bytes.Buffer
	if err := Render(&buf, a, Options{Width: 40}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"W " + strings.Repeat("~", 32) + " 2.0s\n",
		"F " + strings.Repeat("!", 32) + " 2.0s\n",
		"[~] Warnings",
		"[!] Failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Failed/warnings") {
		t.Errorf("legend still merges warnings and failures:\n%s", out)
	}
}

func TestRender_EdgeCases(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Render(&buf, AnalyzeIntervals(nil), Options{Width: 80}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No timed operations") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("zero wall clock", func(t *testing.T) {
		var buf bytes.Buffer
		a := AnalyzeIntervals([]Interval{iv("a", 1, 1), iv("b", 1, 1)})
		if err := Render(&buf, a, Options{Width: 20}); err != nil {
			t.Fatal(err)
		}
		// chartWidth = 20 - 1 - 4 - 4 = 11; every bar sits at column 0.
		if !strings.Contains(buf.String(), "a #"+strings.Repeat("-", 11)+" 0.0s\n") {
			t.Errorf("degenerate chart:\n%s", buf.String())
		}
	})

	t.Run("names wider than the terminal", func(t *testing.T) {
		var buf bytes.Buffer
		long := strings.Repeat("x", 60)
		a := AnalyzeIntervals([]Interval{iv(long, 0, 1), iv("y", 0.5, 2)})
		if err := Render(&buf, a, Options{Width: 30}); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, long+" 1.0s\n") {
			t.Errorf("collapsed chart should print name and duration only:\n%s", out)
		}
		if !strings.Contains(out, strings.Repeat(" ", 59)+"y 1.5s\n") {
			t.Errorf("collapsed chart rendered bars:\n%s", out)
		}
	})
}

func TestWidth(t *testing.T) {
	var buf bytes.Buffer
	if got := Width(&buf, 0); got != DefaultWidth {
		t.Errorf("Width(non-terminal) = %d, want %d", got, DefaultWidth)
	}
	if got := Width(&buf, 60); got != 60 {
		t.Errorf("Width(max 60) = %d, want 60", got)
	}
}
