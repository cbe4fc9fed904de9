package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// ErrScriptTimeout interrupts a script that ran past the execution limit.
var ErrScriptTimeout = errors.New("script execution limit exceeded")

// Sandbox runs user scripts in a fresh interpreter per invocation. Scripts
// receive only the pm capability object passed as their sole argument.
type Sandbox struct {
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Sandbox)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sandbox) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout caps the wall-clock time of one script. Zero means no cap.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		s.timeout = d
	}
}

// WithClock overrides the time source used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Sandbox) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDFunc overrides result and header id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Sandbox) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TestRun is the input of a test script invocation.
type TestRun struct {
	Script      model.TestScript
	Request     model.RequestConfig
	Response    *model.ResponseData
	Environment *model.Environment
}

// TestOutcome holds the results of one test script in call order and the
// environment writes it requested.
type TestOutcome struct {
	Results           []model.TestResult
	EnvironmentWrites []model.KeyValue
}

// PreRequestOutcome holds the request as the script left it. When Err is set
// the script failed and Request is the unmodified original.
type PreRequestOutcome struct {
	Request           model.RequestConfig
	EnvironmentWrites []model.KeyValue
	Err               error
}

// RunTest executes a test script against a response. Each pm.test call
// yields one result. A failure outside any pm.test call replaces them all
// with one synthetic failed result named for the failure kind, and the
// script's pending writes are discarded.
func (s *Sandbox) RunTest(ctx context.Context, run TestRun) TestOutcome {
	inv := s.newInvocation(run.Script, run.Request, run.Response, run.Environment)
	pm := inv.testContext()

	if err := s.execute(ctx, inv, pm); err != nil {
		s.logger.Debug("test script failed",
			"script", run.Script.Name, "kind", failureName(err), "error", err,
			"discarded", len(inv.results))
		return TestOutcome{Results: []model.TestResult{inv.failure(err)}}
	}
	return TestOutcome{Results: inv.results, EnvironmentWrites: inv.writes.list()}
}

// RunPreRequest executes a pre-request script on a copy of req. On failure
// the original request is returned unchanged along with the error.
func (s *Sandbox) RunPreRequest(ctx context.Context, script model.TestScript, req model.RequestConfig, environment *model.Environment) PreRequestOutcome {
	inv := s.newInvocation(script, req.Clone(), nil, environment)
	pm := inv.preRequestContext()

	if err := s.execute(ctx, inv, pm); err != nil {
		s.logger.Warn("pre-request script failed, sending original request",
			"script", script.Name, "kind", failureName(err), "error", err)
		return PreRequestOutcome{Request: req, Err: err}
	}
	return PreRequestOutcome{Request: inv.request, EnvironmentWrites: inv.writes.list()}
}

// wrapScript keeps user code on the first line so reported line numbers match.
func wrapScript(code string) string {
	return "(function (pm) {" + code + "\n})"
}

func (s *Sandbox) execute(ctx context.Context, inv *invocation, pm *goja.Object) error {
	name := inv.script.Name
	if name == "" {
		name = "script"
	}
	prog, err := goja.Compile(name, wrapScript(inv.script.Code), false)
	if err != nil {
		return &ScriptError{Kind: KindCompilation, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &ScriptError{Kind: KindCancelled, Err: err}
	}

	if s.timeout > 0 {
		timer := time.AfterFunc(s.timeout, func() {
			inv.vm.Interrupt(ErrScriptTimeout)
		})
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() {
		inv.vm.Interrupt(context.Cause(ctx))
	})
	defer stop()

	fnValue, err := inv.vm.RunProgram(prog)
	if err != nil {
		return s.classify(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return &ScriptError{Kind: KindCompilation, Err: errors.New("script did not evaluate to a function")}
	}
	if _, err := fn(goja.Undefined(), pm); err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *Sandbox) classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause, _ := interrupted.Value().(error)
		if errors.Is(cause, ErrScriptTimeout) {
			return &ScriptError{Kind: KindTimeout, Err: fmt.Errorf("%w after %s", ErrScriptTimeout, s.timeout)}
		}
		if cause == nil {
			cause = context.Canceled
		}
		return &ScriptError{Kind: KindCancelled, Err: cause}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Kind: KindCompilation, Err: err}
	}
	return &ScriptError{Kind: KindExecution, Err: err}
}

// failure builds the synthetic result for a script-level error.
func (inv *invocation) failure(err error) model.TestResult {
	return model.TestResult{
		ID:        inv.sb.newID(),
		TestName:  failureName(err),
		Passed:    false,
		Message:   exceptionMessage(err),
		Duration:  0,
		Timestamp: inv.sb.now(),
	}
}
