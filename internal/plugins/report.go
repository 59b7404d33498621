package plugins

import (
	"context"
	"io"
	"runtime"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/telemetry"
	"github.com/Iron-Ham/phasebuild/internal/timeline"
)

// Timeline prints the parallelism chart of every cycle after it finishes.
// Output failures are logged and never change the cycle's outcome.
type Timeline struct {
	Out io.Writer
	// MaxWidth caps the chart width. Zero uses the terminal width.
	MaxWidth int
	Renderer *lipgloss.Renderer
	Logger   *logging.Logger
}

// Name implements hooks.Plugin.
func (t *Timeline) Name() string { return "timeline" }

// Apply implements hooks.Plugin.
func (t *Timeline) Apply(r *hooks.Registry) error {
	r.AfterExecuteOperations.Tap(t.Name(), t.afterExecute)
	return nil
}

func (t *Timeline) afterExecute(_ context.Context, ev hooks.ExecuteEvent) error {
	analysis := timeline.Analyze(ev.Result)
	_, err := io.WriteString(t.Out, "\n")
	if err == nil {
		err = timeline.Render(t.Out, analysis, timeline.Options{
			Width:    timeline.Width(t.Out, t.MaxWidth),
			Renderer: t.Renderer,
		})
	}
	if err != nil && t.Logger != nil {
		t.Logger.Warn("failed to render timeline", "error", err)
	}
	return nil
}

// Telemetry annotates every telemetry record with the run settings and the
// realized parallelism of the cycle.
type Telemetry struct {
	Parallelism int
	Watch       bool
	Incremental bool

	// analysis of the current cycle, consumed by the next beforeLog.
	// Cycles that fail before execution never set it.
	analysis *timeline.Analysis
}

// Name implements hooks.Plugin.
func (t *Telemetry) Name() string { return "telemetry" }

// Apply implements hooks.Plugin.
func (t *Telemetry) Apply(r *hooks.Registry) error {
	r.AfterExecuteOperations.Tap(t.Name(), func(_ context.Context, ev hooks.ExecuteEvent) error {
		t.analysis = timeline.Analyze(ev.Result)
		return nil
	})
	r.BeforeLog.Tap(t.Name(), t.beforeLog)
	return nil
}

func (t *Telemetry) beforeLog(rec *telemetry.Record) error {
	if rec.ExtraData == nil {
		rec.ExtraData = map[string]string{}
	}
	rec.ExtraData["parallelism"] = strconv.Itoa(t.Parallelism)
	rec.ExtraData["watch"] = strconv.FormatBool(t.Watch)
	rec.ExtraData["incremental"] = strconv.FormatBool(t.Incremental)
	rec.ExtraData["goVersion"] = runtime.Version()
	a := t.analysis
	t.analysis = nil
	if a != nil && !a.Empty() {
		rec.ExtraData["maxParallelism"] = strconv.Itoa(a.MaxParallelism)
		rec.ExtraData["averageParallelism"] = strconv.FormatFloat(a.AverageParallelism, 'f', 1, 64)
		rec.ExtraData["workSeconds"] = strconv.FormatFloat(a.WorkDuration.Seconds(), 'f', 3, 64)
	}
	return nil
}
