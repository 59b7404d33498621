package timeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/phasebuild/internal/operation"
)

// DefaultWidth is the chart width used when the output is not a terminal.
const DefaultWidth = 109

// Chart glyphs.
const (
	glyphSuccess = '#'
	glyphWarning = '~'
	glyphFailure = '!'
	glyphSkipped = '%'
	glyphFiller  = '-'
)

var (
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	failureColor = lipgloss.Color("#F87171") // Red
	skippedColor = lipgloss.Color("#60A5FA") // Blue
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	nameColor    = lipgloss.Color("#22D3EE") // Cyan
)

// Options controls rendering.
type Options struct {
	// Width is the total line width. Zero means Width(out, 0).
	Width int
	// Renderer colors the output. Nil means a renderer detected from out, so
	// writers that are not terminals get plain text.
	Renderer *lipgloss.Renderer
}

// Width returns the width to render for out: the terminal width when out is
// a terminal, DefaultWidth otherwise, capped by maxWidth when it is positive.
func Width(out io.Writer, maxWidth int) int {
	width := DefaultWidth
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	if maxWidth > 0 && width > maxWidth {
		width = maxWidth
	}
	return width
}

type palette struct {
	success, warning, failure, skipped, muted, name, plain lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(failureColor),
		skipped: r.NewStyle().Foreground(skippedColor),
		muted:   r.NewStyle().Foreground(mutedColor),
		name:    r.NewStyle().Foreground(nameColor),
		plain:   r.NewStyle(),
	}
}

// style returns the bar style and glyph of a status.
func (p palette) style(s operation.Status) (lipgloss.Style, rune) {
	switch s.Category() {
	case operation.CategorySuccess:
		return p.success, glyphSuccess
	case operation.CategoryWarning:
		return p.warning, glyphWarning
	case operation.CategoryFailure:
		return p.failure, glyphFailure
	case operation.CategorySkipped:
		return p.skipped, glyphSkipped
	default:
		return p.plain, glyphSkipped
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Render writes the chart, legend, statistics and phase totals of a. An
// empty analysis produces a one-line notice.
func Render(out io.Writer, a *Analysis, opts Options) error {
	r := opts.Renderer
	if r == nil {
		r = lipgloss.NewRenderer(out)
	}
	p := newPalette(r)
	width := opts.Width
	if width <= 0 {
		width = Width(out, 0)
	}

	var b strings.Builder
	if a == nil || a.Empty() {
		b.WriteString("No timed operations to chart.\n")
		_, err := io.WriteString(out, b.String())
		return err
	}

	longestName, longestDuration := 0, 0
	durations := make([]string, len(a.Intervals))
	for i, iv := range a.Intervals {
		longestName = max(longestName, len(iv.Name))
		durations[i] = formatSeconds(iv.Duration())
		longestDuration = max(longestDuration, len(durations[i]))
	}
	chartWidth := width - longestName - longestDuration - 4
	rule := strings.Repeat("=", max(width, 1))

	b.WriteString(rule + "\n")
	for i, iv := range a.Intervals {
		name := p.name.Render(fmt.Sprintf("%*s", longestName, iv.Name))
		dur := p.plain.Render(fmt.Sprintf("%*s", longestDuration, durations[i]))
		if chartWidth < 1 {
			b.WriteString(name + " " + dur + "\n")
			continue
		}
		b.WriteString(name + " " + p.bar(a, iv, chartWidth) + " " + dur + "\n")
	}
	b.WriteString(rule + "\n")

	b.WriteString("LEGEND:" +
		"  [" + p.success.Render(string(glyphSuccess)) + "] Success" +
		"  [" + p.warning.Render(string(glyphWarning)) + "] Warnings" +
		"  [" + p.failure.Render(string(glyphFailure)) + "] Failed" +
		"  [" + p.skipped.Render(string(glyphSkipped)) + "] Skipped/cached/no-op\n")
	b.WriteString("\n")

	fmt.Fprintf(&b, "Total Work: %s\n", formatSeconds(a.WorkDuration))
	fmt.Fprintf(&b, "Wall Clock: %s\n", formatSeconds(a.AllDuration))
	fmt.Fprintf(&b, "Max Parallelism Used: %d\n", a.MaxParallelism)
	fmt.Fprintf(&b, "Average Parallelism: %.1f\n", a.AverageParallelism)

	if len(a.Phases) > 0 {
		longestPhase := 0
		for _, ph := range a.Phases {
			longestPhase = max(longestPhase, len(ph.Phase))
		}
		b.WriteString("BY PHASE:\n")
		for _, ph := range a.Phases {
			fmt.Fprintf(&b, "  %*s %s\n", longestPhase, ph.Phase, formatSeconds(ph.Duration))
		}
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(out, b.String())
	return err
}

// bar renders the chartWidth+1 columns of one interval. Columns are
// floor((t - allStart) * chartWidth / allDuration) for the start and end
// instants; a zero wall-clock span puts every bar at column 0.
func (p palette) bar(a *Analysis, iv Interval, chartWidth int) string {
	startIdx, endIdx := 0, 0
	if a.AllDuration > 0 {
		startIdx = column(iv.Start.Sub(a.AllStart), a.AllDuration, chartWidth)
		endIdx = column(iv.End.Sub(a.AllStart), a.AllDuration, chartWidth)
	}
	startIdx = min(max(startIdx, 0), chartWidth)
	endIdx = min(max(endIdx, startIdx), chartWidth)

	style, glyph := p.style(iv.Status)
	return p.muted.Render(strings.Repeat(string(glyphFiller), startIdx)) +
		style.Render(strings.Repeat(string(glyph), endIdx-startIdx+1)) +
		p.muted.Render(strings.Repeat(string(glyphFiller), chartWidth-endIdx))
}

func column(offset, span time.Duration, chartWidth int) int {
	return int(int64(offset) * int64(chartWidth) / int64(span))
}
