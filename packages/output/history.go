package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	"github.com/abdul-hamid-achik/reqly/packages/db"
)

// HistoryReporter prints stored history entries and latency statistics.
type HistoryReporter struct {
	writer  io.Writer
	noColor bool
	verbose bool

	green *color.Color
	red   *color.Color
	cyan  *color.Color
	bold  *color.Color
	dim   *color.Color
}

// HistoryOption configures the reporter
type HistoryOption func(*HistoryReporter)

func HistoryWithWriter(w io.Writer) HistoryOption {
	return func(r *HistoryReporter) {
		r.writer = w
	}
}

func HistoryWithNoColor(noColor bool) HistoryOption {
	return func(r *HistoryReporter) {
		r.noColor = noColor
	}
}

// HistoryWithVerbose adds the per-endpoint breakdown to Stats.
func HistoryWithVerbose(verbose bool) HistoryOption {
	return func(r *HistoryReporter) {
		r.verbose = verbose
	}
}

func NewHistoryReporter(opts ...HistoryOption) *HistoryReporter {
	r := &HistoryReporter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.cyan = color.New(color.FgCyan)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)
	if r.noColor {
		for _, c := range []*color.Color{r.green, r.red, r.cyan, r.bold, r.dim} {
			c.DisableColor()
		}
	}
	return r
}

// Entries prints one line per entry, in the order given.
func (r *HistoryReporter) Entries(entries []model.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(r.writer, "No history yet.")
		return
	}
	for _, e := range entries {
		status := r.red.Sprint("ERR")
		if !e.Response.IsNetworkError() {
			c := r.red
			if e.Response.Status < 400 {
				c = r.green
			}
			status = c.Sprintf("%3d", e.Response.Status)
		}
		fmt.Fprintf(r.writer, "%s  %s  %-7s %s %s\n",
			r.dim.Sprint(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
			status,
			e.Request.Method,
			e.Request.URL,
			r.cyan.Sprintf("(%dms)", e.Response.Time))
	}
}

// Stats prints the latency summary
func (r *HistoryReporter) Stats(stats *db.Stats) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "HISTORY SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(stats.Total))
	fmt.Fprintln(r.writer, " requests")

	fmt.Fprintf(r.writer, "Success:    ")
	r.green.Fprintf(r.writer, "%s\n", formatNumber(stats.Success))

	fmt.Fprintf(r.writer, "Failed:     ")
	if stats.Errors > 0 {
		r.red.Fprintf(r.writer, "%s\n", formatNumber(stats.Errors))
	} else {
		fmt.Fprintf(r.writer, "%s\n", formatNumber(stats.Errors))
	}

	if stats.Success == 0 {
		fmt.Fprintln(r.writer)
		return
	}

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LATENCY")
	fmt.Fprintf(r.writer, "  p50: %-6s | p90: %-6s | p95: %-6s | p99: %s\n",
		formatLatency(stats.P50),
		formatLatency(stats.P90),
		formatLatency(stats.P95),
		formatLatency(stats.P99))
	fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | max: %s\n",
		formatLatency(stats.Min),
		formatLatency(stats.Mean),
		formatLatency(stats.Max))

	if r.verbose && len(stats.Endpoints) > 0 {
		names := make([]string, 0, len(stats.Endpoints))
		for name := range stats.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "PER-ENDPOINT BREAKDOWN")
		for _, name := range names {
			ep := stats.Endpoints[name]
			fmt.Fprintf(r.writer, "  %s:\n", name)
			fmt.Fprintf(r.writer, "    Total: %s | Errors: %s\n", formatNumber(ep.Total), formatNumber(ep.Errors))
			fmt.Fprintf(r.writer, "    p50: %s | p95: %s | mean: %s\n",
				formatLatency(ep.P50), formatLatency(ep.P95), formatLatency(ep.Mean))
		}
	}
	fmt.Fprintln(r.writer)
}

// JSONStats outputs the summary as JSON
func (r *HistoryReporter) JSONStats(stats *db.Stats) error {
	output := map[string]any{
		"requests": map[string]any{
			"total":   stats.Total,
			"success": stats.Success,
			"failed":  stats.Errors,
		},
		"latency": map[string]any{
			"p50":  stats.P50.Milliseconds(),
			"p90":  stats.P90.Milliseconds(),
			"p95":  stats.P95.Milliseconds(),
			"p99":  stats.P99.Milliseconds(),
			"min":  stats.Min.Milliseconds(),
			"max":  stats.Max.Milliseconds(),
			"mean": stats.Mean.Milliseconds(),
		},
	}

	if len(stats.Endpoints) > 0 {
		breakdown := make(map[string]any, len(stats.Endpoints))
		for name, ep := range stats.Endpoints {
			breakdown[name] = map[string]any{
				"total":  ep.Total,
				"errors": ep.Errors,
				"p50":    ep.P50.Milliseconds(),
				"p95":    ep.P95.Milliseconds(),
				"mean":   ep.Mean.Milliseconds(),
			}
		}
		output["endpoints"] = breakdown
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// JSONEntries outputs the entries as a JSON array
func (r *HistoryReporter) JSONEntries(entries []model.HistoryEntry) error {
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

// formatLatency formats latency for display
func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
