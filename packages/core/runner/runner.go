package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	"github.com/abdul-hamid-achik/reqly/packages/http"
	"github.com/abdul-hamid-achik/reqly/packages/recorder"
	"github.com/abdul-hamid-achik/reqly/packages/sandbox"
)

const (
	// DefaultConcurrency is the default number of requests RunAll sends at once
	DefaultConcurrency = 5
)

// HistoryStore receives one entry per dispatch attempt.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
}

type Runner struct {
	dispatcher *http.Dispatcher
	sandbox    *sandbox.Sandbox
	recorder   *recorder.Recorder
	results    recorder.Store
	history    HistoryStore
	logger     *slog.Logger
	config     *Config
}

type Config struct {
	Timeout         time.Duration
	ScriptTimeout   time.Duration
	FollowRedirect  bool
	MaxRedirects    int
	Insecure        bool
	DefaultHeaders  map[string]string
	RelayURL        string
	RelayAPIKey     string
	StrictVariables bool
	Concurrency     int
	Bail            bool
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHistory appends every dispatch to store.
func WithHistory(store HistoryStore) Option {
	return func(r *Runner) {
		r.history = store
	}
}

// WithResultStore persists recorded test results to store.
func WithResultStore(store recorder.Store) Option {
	return func(r *Runner) {
		r.results = store
	}
}

// WithDispatcher replaces the dispatcher built from Config.
func WithDispatcher(d *http.Dispatcher) Option {
	return func(r *Runner) {
		if d != nil {
			r.dispatcher = d
		}
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Runner{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.dispatcher == nil {
		clientOpts := []http.ClientOption{
			http.WithFollowRedirects(cfg.FollowRedirect),
			http.WithValidateSSL(!cfg.Insecure),
		}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, http.WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRedirects > 0 {
			clientOpts = append(clientOpts, http.WithMaxRedirects(cfg.MaxRedirects))
		}
		if len(cfg.DefaultHeaders) > 0 {
			clientOpts = append(clientOpts, http.WithDefaultHeaders(cfg.DefaultHeaders))
		}
		r.dispatcher = http.NewDispatcher(http.NewClient(clientOpts...),
			http.WithRelay(cfg.RelayURL, cfg.RelayAPIKey),
			http.WithStrictVariables(cfg.StrictVariables),
			http.WithLogger(r.logger),
		)
	}
	r.sandbox = sandbox.New(sandbox.WithLogger(r.logger), sandbox.WithTimeout(cfg.ScriptTimeout))
	r.recorder = recorder.New(r.results, recorder.WithLogger(r.logger))
	return r
}

// Job is one request with everything needed to run it.
type Job struct {
	Request     model.RequestConfig
	Scripts     []model.TestScript
	Environment *model.Environment
	// Scopes are consulted after the environment, in order.
	Scopes []env.Scope
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	// Request is the request as dispatched, after pre-request scripts.
	Request  model.RequestConfig
	Response model.ResponseData
	Results  []model.TestResult
	// EnvironmentWrites are the pm.environment.set calls of every script, in
	// first-write order with the last value winning. They are never applied.
	EnvironmentWrites []model.KeyValue
	PreRequestErrors  []error
	Duration          time.Duration
}

func (o *Outcome) Passed() int {
	n := 0
	for _, r := range o.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

func (o *Outcome) Failed() int {
	return len(o.Results) - o.Passed()
}

// OK reports a non-sentinel response and no failed results.
func (o *Outcome) OK() bool {
	return !o.Response.IsNetworkError() && o.Failed() == 0
}

// Run executes the pipeline for one request: pre-request scripts, dispatch,
// test scripts, recording and history. Every failure below the pipeline is
// data on the Outcome; the only returned error is http.ErrDispatchInFlight.
func (r *Runner) Run(ctx context.Context, job Job) (*Outcome, error) {
	start := time.Now()
	pre, tests := scriptsFor(job.Request.ID, job.Scripts)
	writes := &writeSet{}
	outcome := &Outcome{}

	working := job.Request.Clone()
	for _, script := range pre {
		res := r.sandbox.RunPreRequest(ctx, script, working, writes.overlay(job.Environment))
		if res.Err != nil {
			outcome.PreRequestErrors = append(outcome.PreRequestErrors, res.Err)
			continue
		}
		working = res.Request
		writes.merge(res.EnvironmentWrites)
	}

	scopes := make([]env.Scope, 0, len(job.Scopes)+2)
	if pending := writes.scope(); len(pending) > 0 {
		scopes = append(scopes, pending)
	}
	if job.Environment != nil {
		scopes = append(scopes, job.Environment)
	}
	scopes = append(scopes, job.Scopes...)

	resp, err := r.dispatcher.Dispatch(ctx, working, scopes...)
	if err != nil {
		return nil, err
	}

	var raw []model.TestResult
	for _, script := range tests {
		res := r.sandbox.RunTest(ctx, sandbox.TestRun{
			Script:      script,
			Request:     working,
			Response:    &resp,
			Environment: writes.overlay(job.Environment),
		})
		raw = append(raw, res.Results...)
		writes.merge(res.EnvironmentWrites)
	}

	outcome.Request = working
	outcome.Response = resp
	outcome.Results = r.recorder.Record(ctx, job.Request.ID, working, resp, raw)
	outcome.EnvironmentWrites = writes.list()
	outcome.Duration = time.Since(start)

	r.appendHistory(ctx, working, resp)

	r.logger.Debug("request completed",
		"request", job.Request.ID, "status", resp.Status,
		"passed", outcome.Passed(), "failed", outcome.Failed(),
		"duration", outcome.Duration)
	return outcome, nil
}

func (r *Runner) appendHistory(ctx context.Context, req model.RequestConfig, resp model.ResponseData) {
	if r.history == nil {
		return
	}
	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		Request:   req,
		Response:  resp,
		Timestamp: time.Now(),
	}
	if err := r.history.AppendHistory(ctx, entry); err != nil {
		r.logger.Warn("failed to write history", "request", req.ID, "error", err)
	}
}

// RunResult aggregates RunAll.
type RunResult struct {
	Outcomes []*Outcome
	Errors   []error
	Duration time.Duration
	Passed   int
	Failed   int
}

// RunAll runs independent jobs. With Bail set, jobs run in order and stop at
// the first failing one; otherwise they run concurrently. Outcomes keep job
// order; a job that could not run leaves a nil outcome and an error.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) *RunResult {
	start := time.Now()
	result := &RunResult{
		Outcomes: make([]*Outcome, len(jobs)),
		Errors:   make([]error, len(jobs)),
	}

	if r.config.Bail {
		for i, job := range jobs {
			result.Outcomes[i], result.Errors[i] = r.Run(ctx, job)
			if result.Errors[i] != nil || !result.Outcomes[i].OK() {
				break
			}
		}
	} else {
		r.runParallel(ctx, jobs, result)
	}

	for i, o := range result.Outcomes {
		switch {
		case o != nil && o.OK():
			result.Passed++
		case o != nil || result.Errors[i] != nil:
			result.Failed++
		}
	}
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runParallel(ctx context.Context, jobs []Job, result *RunResult) {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{} // acquire semaphore

		go func(idx int, job Job) {
			defer wg.Done()
			defer func() { <-sem }() // release semaphore

			result.Outcomes[idx], result.Errors[idx] = r.Run(ctx, job)
		}(i, job)
	}

	wg.Wait()
}

// Err joins every job error, or returns nil.
func (rr *RunResult) Err() error {
	return errors.Join(rr.Errors...)
}

// scriptsFor splits the scripts attached to requestID by type, keeping order.
func scriptsFor(requestID string, scripts []model.TestScript) (pre, tests []model.TestScript) {
	for _, s := range scripts {
		if s.RequestID != requestID {
			continue
		}
		switch s.Type {
		case model.ScriptPreRequest:
			pre = append(pre, s)
		case model.ScriptTest:
			tests = append(tests, s)
		}
	}
	return pre, tests
}
