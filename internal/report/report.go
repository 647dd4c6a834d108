// Package report renders run summaries for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"stampede/internal/metrics"
)

// Summary is the final result of one load-test run.
type Summary struct {
	RunID    string    `json:"runId"`
	Scenario string    `json:"scenario"`
	Host     string    `json:"host"`
	Start    time.Time `json:"start"`

	Duration    time.Duration `json:"duration"`
	TargetUsers int           `json:"targetUsers"`
	SpawnRate   float64       `json:"spawnRate"`

	TotalRequests  int64   `json:"totalRequests"`
	FailedRequests int64   `json:"failedRequests"`
	FailureRate    float64 `json:"failureRate"`
	RPS            float64 `json:"rps"`
	TotalBytes     int64   `json:"totalBytes"`

	Latency  metrics.LatencyStats          `json:"latency"`
	PerLabel map[string]metrics.LabelStats `json:"perLabel"`

	// FailThreshold is the maximum acceptable failure rate, or a
	// negative value when no threshold was set.
	FailThreshold float64 `json:"failThreshold"`
	Passed        bool    `json:"passed"`

	// Interrupted marks a run cut short by a signal or stop request.
	Interrupted bool     `json:"interrupted,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Build assembles a summary from a final metrics snapshot.
func Build(runID, scenarioName, host string, targetUsers int, spawnRate float64,
	snap *metrics.Snapshot, failThreshold float64, interrupted bool, warnings []string) *Summary {

	passed := true
	if failThreshold >= 0 && snap.FailureRate > failThreshold {
		passed = false
	}

	return &Summary{
		RunID:          runID,
		Scenario:       scenarioName,
		Host:           host,
		Start:          snap.StartTime,
		Duration:       snap.Elapsed,
		TargetUsers:    targetUsers,
		SpawnRate:      spawnRate,
		TotalRequests:  snap.TotalRequests,
		FailedRequests: snap.FailedRequests,
		FailureRate:    snap.FailureRate,
		RPS:            snap.RPS,
		TotalBytes:     snap.TotalBytes,
		Latency:        snap.Latency,
		PerLabel:       snap.PerLabel,
		FailThreshold:  failThreshold,
		Passed:         passed,
		Interrupted:    interrupted,
		Warnings:       warnings,
	}
}

// WriteJSON writes the machine-readable summary.
func WriteJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ColorEnabled reports whether colored output should go to f.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Renderer writes human-readable summaries.
type Renderer struct {
	w io.Writer

	header  *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	muted   *color.Color
	literal *color.Color
}

// NewRenderer creates a renderer. Colors are stripped when useColor is
// false.
func NewRenderer(w io.Writer, useColor bool) *Renderer {
	r := &Renderer{
		w:       w,
		header:  color.New(color.FgCyan, color.Bold),
		good:    color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
		muted:   color.New(color.Faint),
		literal: color.New(color.FgCyan),
	}
	if !useColor {
		for _, c := range []*color.Color{r.header, r.good, r.warn, r.bad, r.muted, r.literal} {
			c.DisableColor()
		}
	}
	return r
}

// Render writes the full summary.
func (r *Renderer) Render(s *Summary) {
	rule := strings.Repeat("━", 56)

	status := r.good.Sprint("PASSED ✓")
	if !s.Passed {
		status = r.bad.Sprint("FAILED ✗")
	}
	if s.Interrupted {
		status += r.warn.Sprint(" (interrupted)")
	}

	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.header.Sprint(rule))
	fmt.Fprintf(r.w, "%s - %s\n", r.header.Sprintf("%s @ %s", s.Scenario, s.Host), status)
	fmt.Fprintln(r.w, r.header.Sprint(rule))
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "Run ID:        %s\n", r.muted.Sprint(s.RunID))
	fmt.Fprintf(r.w, "Duration:      %s\n", r.literal.Sprint(formatDuration(s.Duration)))
	fmt.Fprintf(r.w, "Users:         %s (spawn rate %.1f/s)\n", r.literal.Sprintf("%d", s.TargetUsers), s.SpawnRate)
	fmt.Fprintf(r.w, "Total Reqs:    %s\n", r.literal.Sprint(formatNumber(s.TotalRequests)))
	fmt.Fprintf(r.w, "Throughput:    %s req/s\n", r.literal.Sprintf("%.1f", s.RPS))
	fmt.Fprintf(r.w, "Failures:      %s (%s)\n",
		formatNumber(s.FailedRequests), r.rateColor(s.FailureRate).Sprintf("%.2f%%", s.FailureRate*100))
	fmt.Fprintln(r.w)

	if s.Latency.Count > 0 {
		fmt.Fprintln(r.w, r.header.Sprint("Latency Distribution:"))
		fmt.Fprintf(r.w, "  Min:       %s\n", formatDurationShort(s.Latency.Min))
		fmt.Fprintf(r.w, "  P50:       %s\n", formatDurationShort(s.Latency.P50))
		fmt.Fprintf(r.w, "  P90:       %s\n", formatDurationShort(s.Latency.P90))
		fmt.Fprintf(r.w, "  P95:       %s\n", formatDurationShort(s.Latency.P95))
		fmt.Fprintf(r.w, "  P99:       %s\n", formatDurationShort(s.Latency.P99))
		fmt.Fprintf(r.w, "  Max:       %s\n", formatDurationShort(s.Latency.Max))
		fmt.Fprintln(r.w)
	}

	if len(s.PerLabel) > 0 {
		r.renderLabels(s.PerLabel)
	}

	if s.FailThreshold >= 0 {
		mark := r.good.Sprint("✓")
		if !s.Passed {
			mark = r.bad.Sprint("✗")
		}
		fmt.Fprintln(r.w, r.header.Sprint("Thresholds:"))
		fmt.Fprintf(r.w, "  %s failure rate <= %.2f%% (actual: %.2f%%)\n",
			mark, s.FailThreshold*100, s.FailureRate*100)
		fmt.Fprintln(r.w)
	}

	for _, warning := range s.Warnings {
		fmt.Fprintf(r.w, "%s %s\n", r.warn.Sprint("⚠"), warning)
	}
}

func (r *Renderer) renderLabels(perLabel map[string]metrics.LabelStats) {
	labels := make([]string, 0, len(perLabel))
	width := 0
	for label := range perLabel {
		labels = append(labels, label)
		if len(label) > width {
			width = len(label)
		}
	}
	sort.Strings(labels)

	fmt.Fprintln(r.w, r.header.Sprint("Per Endpoint:"))
	fmt.Fprintf(r.w, "  %-*s %10s %8s %10s %10s %10s\n", width, "", "reqs", "fail%", "p50", "p95", "p99")
	for _, label := range labels {
		stats := perLabel[label]
		fmt.Fprintf(r.w, "  %-*s %10s %s %10s %10s %10s\n",
			width, label,
			formatNumber(stats.Count),
			r.rateColor(stats.FailureRate).Sprintf("%7.2f%%", stats.FailureRate*100),
			formatDurationShort(stats.Latency.P50),
			formatDurationShort(stats.Latency.P95),
			formatDurationShort(stats.Latency.P99))
	}
	fmt.Fprintln(r.w)
}

func (r *Renderer) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return r.bad
	case rate > 0.01:
		return r.warn
	default:
		return r.good
	}
}

// ProgressLine formats a one-line status update for non-interactive runs.
func ProgressLine(snap *metrics.Snapshot) string {
	return fmt.Sprintf("[%s] %s | Users: %d | Reqs: %s | RPS: %.1f | Failures: %s (%.1f%%) | P95: %s",
		formatDuration(snap.Elapsed),
		snap.CurrentPhase,
		snap.ActiveUsers,
		formatNumber(snap.TotalRequests),
		snap.CurrentRPS,
		formatNumber(snap.FailedRequests),
		snap.FailureRate*100,
		formatDurationShort(snap.Latency.P95))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
