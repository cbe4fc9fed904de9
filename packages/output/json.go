package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	"github.com/abdul-hamid-achik/reqly/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary   `json:"summary"`
	Requests []JSONRequest `json:"requests"`
	Errors   []string      `json:"errors,omitempty"`
	Duration float64       `json:"duration"`
	Time     string        `json:"time"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Requests int `json:"requests"`
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
}

// JSONRequest is one pipeline outcome
type JSONRequest struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Method            string             `json:"method"`
	URL               string             `json:"url"`
	Headers           map[string]string  `json:"headers,omitempty"`
	Response          model.ResponseData `json:"response"`
	Tests             []JSONTest         `json:"tests"`
	EnvironmentWrites map[string]string  `json:"environmentWrites,omitempty"`
	PreRequestErrors  []string           `json:"preRequestErrors,omitempty"`
	Duration          float64            `json:"duration"`
}

// JSONTest represents a single test result
type JSONTest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Duration int64  `json:"duration"`
}

// JSONFormatter formats outcomes as JSON
type JSONFormatter struct {
	writer   io.Writer
	requests []JSONRequest
	errors   []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:   os.Stdout,
		requests: make([]JSONRequest, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatOutcome(o *runner.Outcome) {
	req := JSONRequest{
		ID:       o.Request.ID,
		Name:     o.Request.Name,
		Method:   o.Request.Method,
		URL:      o.Request.URL,
		Headers:  o.Request.EnabledHeaderMap(),
		Response: o.Response,
		Tests:    make([]JSONTest, len(o.Results)),
		Duration: float64(o.Duration.Milliseconds()),
	}
	for i, r := range o.Results {
		req.Tests[i] = JSONTest{
			ID:       r.ID,
			Name:     r.TestName,
			Passed:   r.Passed,
			Message:  r.Message,
			Duration: r.Duration,
		}
	}
	if len(o.EnvironmentWrites) > 0 {
		req.EnvironmentWrites = make(map[string]string, len(o.EnvironmentWrites))
		for _, kv := range o.EnvironmentWrites {
			req.EnvironmentWrites[kv.Key] = kv.Value
		}
	}
	for _, err := range o.PreRequestErrors {
		req.PreRequestErrors = append(req.PreRequestErrors, err.Error())
	}
	f.requests = append(f.requests, req)
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	summary := JSONSummary{Requests: len(f.requests)}
	for _, r := range f.requests {
		for _, t := range r.Tests {
			summary.Total++
			if t.Passed {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Requests: f.requests,
		Errors:   f.errors,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
