package plugins

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/operation"
)

var (
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	failureColor = lipgloss.Color("#F87171") // Red
	skippedColor = lipgloss.Color("#60A5FA") // Blue
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// ConsoleStatus prints a line for every operation that finishes and a
// summary after every cycle. Silent operations are not reported.
type ConsoleStatus struct {
	Out io.Writer
	// Renderer colors the output. Nil detects the color profile from Out.
	Renderer *lipgloss.Renderer
	// Verbose prints the output of successful operations too. Output of
	// failed operations and operations with warnings is always printed.
	Verbose bool

	mu     sync.Mutex
	styles map[operation.Category]lipgloss.Style
	bold   lipgloss.Style
}

// Name implements hooks.Plugin.
func (c *ConsoleStatus) Name() string { return "console-status" }

// Apply implements hooks.Plugin.
func (c *ConsoleStatus) Apply(r *hooks.Registry) error {
	renderer := c.Renderer
	if renderer == nil {
		renderer = lipgloss.NewRenderer(c.Out)
	}
	c.styles = map[operation.Category]lipgloss.Style{
		operation.CategoryNeutral: renderer.NewStyle(),
		operation.CategorySuccess: renderer.NewStyle().Foreground(successColor),
		operation.CategoryWarning: renderer.NewStyle().Foreground(warningColor),
		operation.CategoryFailure: renderer.NewStyle().Foreground(failureColor),
		operation.CategorySkipped: renderer.NewStyle().Foreground(skippedColor),
	}
	c.bold = renderer.NewStyle().Bold(true)

	r.BeforeExecuteOperations.Tap(c.Name(), c.beforeExecute)
	r.OnOperationStatusChanged.Tap(c.Name(), c.statusChanged)
	r.AfterExecuteOperations.Tap(c.Name(), c.afterExecute)
	return nil
}

func (c *ConsoleStatus) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.Out, format, args...)
}

func (c *ConsoleStatus) style(s operation.Status) lipgloss.Style {
	return c.styles[s.Category()]
}

func (c *ConsoleStatus) beforeExecute(_ context.Context, ev hooks.ExecuteEvent) error {
	visible := 0
	for _, rec := range ev.Result.Records() {
		if !rec.Operation.Silent() {
			visible++
		}
	}
	c.printf("%s\n", c.bold.Render(fmt.Sprintf("Executing %d %s (cycle %d)", visible, plural(visible, "operation"), ev.Context.Cycle())))
	return nil
}

func (c *ConsoleStatus) statusChanged(rec *operation.Record) error {
	status := rec.Status()
	if !status.IsTerminal() || rec.Operation.Silent() {
		return nil
	}

	line := StatusLine(rec)
	c.printf("%s\n", c.style(status).Render(line))

	showOutput := c.Verbose || status == operation.StatusFailure || status == operation.StatusSuccessWithWarning
	if out := strings.TrimRight(rec.Output(), "\n"); showOutput && out != "" {
		c.printf("%s\n", out)
	}
	if err := rec.Error(); err != nil {
		c.printf("%s\n", c.style(status).Render(err.Error()))
	}
	return nil
}

// StatusLine formats the line printed when an operation finishes, for
// example "==[ lib (build) ]== SUCCESS in 1.20s". Operations that never ran
// have no duration.
func StatusLine(rec *operation.Record) string {
	line := fmt.Sprintf("==[ %s ]== %s", rec.Operation.Name, rec.Status())
	if sw := rec.Stopwatch(); sw.IsComplete() {
		line += fmt.Sprintf(" in %.2fs", sw.Duration().Seconds())
	}
	return line
}

func (c *ConsoleStatus) afterExecute(_ context.Context, ev hooks.ExecuteEvent) error {
	result := ev.Result
	byStatus := make(map[operation.Status][]string)
	for _, rec := range result.Records() {
		if rec.Operation.Silent() {
			continue
		}
		byStatus[rec.Status()] = append(byStatus[rec.Status()], rec.Operation.Name)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(c.bold.Render("==[ SUMMARY ]=="))
	b.WriteString("\n")
	for _, status := range operation.AllStatuses() {
		names := byStatus[status]
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s\n", c.style(status).Render(fmt.Sprintf("%s: %d", status, len(names))))
		if status.BlocksDependents() || !status.IsTerminal() {
			for _, name := range names {
				fmt.Fprintf(&b, "    %s\n", name)
			}
		}
	}
	if err := result.Err(); err != nil {
		fmt.Fprintf(&b, "  %s\n", c.style(operation.StatusFailure).Render("error: "+err.Error()))
	}
	fmt.Fprintf(&b, "%s\n", c.style(result.Status()).Render(
		fmt.Sprintf("Cycle %d finished with %s in %s", ev.Context.Cycle(), result.Status(), formatElapsed(wallClock(result)))))

	c.printf("%s", b.String())
	return nil
}

// wallClock returns the time between the first start and the last end of
// the cycle's operations.
func wallClock(result *operation.ExecutionResult) time.Duration {
	var first, last time.Time
	for _, rec := range result.Records() {
		sw := rec.Stopwatch()
		if !sw.IsComplete() {
			continue
		}
		if first.IsZero() || sw.StartTime.Before(first) {
			first = sw.StartTime
		}
		if sw.EndTime.After(last) {
			last = sw.EndTime
		}
	}
	if first.IsZero() {
		return 0
	}
	return last.Sub(first)
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
