package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/reqly/packages/core/runner"
)

// DefaultBodyLimit caps the printed response body unless verbose is set.
const DefaultBodyLimit = 2000

// truncate shortens s to maxLen bytes, marking the cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... (%d more bytes)", len(s)-maxLen)
}

// prettyBody indents JSON bodies and leaves anything else untouched.
func prettyBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return body
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	quiet   bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.green = f.newColor(color.FgGreen)
	f.red = f.newColor(color.FgRed)
	f.yellow = f.newColor(color.FgYellow)
	f.cyan = f.newColor(color.FgCyan)
	f.bold = f.newColor(color.Bold)
	f.dim = f.newColor(color.Faint)
	return f
}

func (f *ConsoleFormatter) newColor(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if f.noColor {
		c.DisableColor()
	}
	return c
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithQuiet prints only test results and the summary line.
func WithQuiet(q bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.quiet = q
	}
}

// statusColor picks green for 2xx, yellow for 3xx and red otherwise.
func (f *ConsoleFormatter) statusColor(status int) *color.Color {
	switch {
	case status >= 200 && status < 300:
		return f.green
	case status >= 300 && status < 400:
		return f.yellow
	default:
		return f.red
	}
}

func (f *ConsoleFormatter) FormatOutcome(o *runner.Outcome) {
	req, resp := o.Request, o.Response

	fmt.Fprintf(f.writer, "\n%s %s\n", f.bold.Sprint(req.Method), req.URL)
	if !f.quiet {
		if resp.IsNetworkError() {
			fmt.Fprintf(f.writer, "%s\n", f.red.Sprint(resp.StatusText))
		} else {
			fmt.Fprintf(f.writer, "%s %s\n",
				f.statusColor(resp.Status).Sprintf("%d %s", resp.Status, resp.StatusText),
				f.cyan.Sprintf("(%dms, %s)", resp.Time, formatSize(resp.Size)))
		}

		if f.verbose && len(resp.Headers) > 0 {
			keys := make([]string, 0, len(resp.Headers))
			for k := range resp.Headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(f.writer, "%s %s\n", f.dim.Sprintf("%s:", k), resp.Headers[k])
			}
		}

		if resp.Body != "" {
			body := prettyBody(resp.Body)
			if !f.verbose {
				body = truncate(body, DefaultBodyLimit)
			}
			fmt.Fprintf(f.writer, "\n%s\n", body)
		}
	}

	for _, err := range o.PreRequestErrors {
		fmt.Fprintf(f.writer, "  %s %s\n", f.yellow.Sprint("!"), err)
	}

	if len(o.Results) > 0 {
		fmt.Fprintf(f.writer, "\n")
	}
	for _, r := range o.Results {
		if r.Passed {
			fmt.Fprintf(f.writer, "  %s %s %s\n", f.green.Sprint("✓"), r.TestName, f.cyan.Sprintf("(%dms)", r.Duration))
			continue
		}
		fmt.Fprintf(f.writer, "  %s %s\n", f.red.Sprint("✗"), r.TestName)
		if r.Message != "" {
			fmt.Fprintf(f.writer, "    %s %s\n", f.red.Sprint("→"), r.Message)
		}
	}

	if f.verbose && len(o.EnvironmentWrites) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", f.bold.Sprint("Environment writes:"))
		for _, kv := range o.EnvironmentWrites {
			fmt.Fprintf(f.writer, "  %s = %s\n", kv.Key, kv.Value)
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if passed := o.Passed(); passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.green.Sprintf("%d passed", passed))
	}
	if failed := o.Failed(); failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.red.Sprintf("%d failed", failed))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(o.Results))
	fmt.Fprintf(f.writer, "Time:  %dms\n", o.Duration.Milliseconds())
}

func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.red.Sprint("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	if f.quiet {
		return
	}
	fmt.Fprintf(f.writer, "%s %s\n", f.bold.Sprint("reqly"), version)
}

// formatSize formats a byte count for display
func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
