package http

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// Mode selects how a request reaches its target.
type Mode int

const (
	ModeDirect Mode = iota
	ModeRelay
)

func (m Mode) String() string {
	if m == ModeRelay {
		return "relay"
	}
	return "direct"
}

// State is the dispatch lifecycle of one request context.
type State string

const (
	StateIdle        State = "idle"
	StateResolving   State = "resolving"
	StateDispatching State = "dispatching"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// StateFunc observes state transitions.
type StateFunc func(requestID string, state State)

// Dispatcher resolves, builds and sends requests, always producing a
// ResponseData. At most one dispatch per request id is outstanding.
type Dispatcher struct {
	client      *Client
	relayURL    string
	relayAPIKey string
	strict      bool
	logger      *slog.Logger
	onState     StateFunc

	mu     sync.Mutex
	states map[string]State
}

type DispatcherOption func(*Dispatcher)

func NewDispatcher(client *Client, opts ...DispatcherOption) *Dispatcher {
	if client == nil {
		client = NewClient()
	}
	d := &Dispatcher{
		client:   client,
		relayURL: DefaultRelayURL,
		logger:   slog.Default(),
		states:   make(map[string]State),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithRelay sets the default relay endpoint and its pre-shared key.
func WithRelay(url, apiKey string) DispatcherOption {
	return func(d *Dispatcher) {
		if url != "" {
			d.relayURL = url
		}
		d.relayAPIKey = apiKey
	}
}

// WithStrictVariables makes unresolved {{name}} tokens fail the dispatch.
func WithStrictVariables(strict bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithStateFunc(fn StateFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.onState = fn
	}
}

// State reports the current state for a request id.
func (d *Dispatcher) State(requestID string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[requestID]; ok {
		return s
	}
	return StateIdle
}

// ModeFor reports whether req is sent directly or through a relay.
func ModeFor(req model.RequestConfig) Mode {
	if req.Proxy.Enabled {
		return ModeRelay
	}
	return ModeDirect
}

func (d *Dispatcher) relayTarget(p model.ProxyConfig) string {
	if p.UserProvided && strings.TrimSpace(p.URL) != "" {
		return strings.TrimSpace(p.URL)
	}
	return d.relayURL
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.states[id]; busy {
		return false
	}
	d.states[id] = StateResolving
	return true
}

func (d *Dispatcher) transition(id string, s State) {
	d.mu.Lock()
	switch s {
	case StateSucceeded, StateFailed:
		delete(d.states, id)
	default:
		d.states[id] = s
	}
	d.mu.Unlock()
	if d.onState != nil {
		d.onState(id, s)
	}
}

// Dispatch resolves req against scopes and sends it. Transport failures are
// returned as a status-0 ResponseData, never as an error. The only error is
// ErrDispatchInFlight when req.ID already has an outstanding dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.RequestConfig, scopes ...env.Scope) (model.ResponseData, error) {
	if !d.acquire(req.ID) {
		return model.ResponseData{}, fmt.Errorf("%w: %s", ErrDispatchInFlight, req.ID)
	}
	if d.onState != nil {
		d.onState(req.ID, StateResolving)
	}

	start := time.Now()
	resp, err := d.dispatch(ctx, req, scopes)
	if err != nil {
		kind, msg := ClassifyError(err)
		d.logger.Debug("dispatch failed",
			"request", req.ID, "kind", kind.String(), "error", err)
		d.transition(req.ID, StateFailed)
		return NetworkErrorResponse(msg, time.Since(start)), nil
	}
	resp.Time = time.Since(start).Milliseconds()
	d.transition(req.ID, StateSucceeded)
	return resp, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req model.RequestConfig, scopes []env.Scope) (model.ResponseData, error) {
	resolver := env.NewResolver(scopes...).WithWarnFunc(func(format string, args ...any) {
		d.logger.Debug(fmt.Sprintf(format, args...), "request", req.ID)
	})
	if d.strict {
		if missing := resolver.ValidateRequest(req); len(missing) > 0 {
			return model.ResponseData{}, fmt.Errorf("%w: %s", env.ErrUnresolvedVariables, strings.Join(missing, ", "))
		}
	}

	prepared, err := prepare(req, resolver)
	if err != nil {
		return model.ResponseData{}, err
	}

	mode := ModeFor(req)
	var wire *Request
	if mode == ModeRelay {
		wire, err = prepared.relayRequest(d.relayTarget(req.Proxy), d.relayAPIKey)
	} else {
		wire, err = prepared.directRequest()
	}
	if err != nil {
		return model.ResponseData{}, err
	}

	d.transition(req.ID, StateDispatching)
	d.logger.Debug("sending request",
		"request", req.ID, "mode", mode.String(), "method", prepared.method, "url", prepared.targetURL)

	httpResp, err := d.client.Send(ctx, wire)
	if err != nil {
		return model.ResponseData{}, err
	}
	defer httpResp.Body.Close()

	if kind := httpResp.Header.Get(RelayFailureHeader); mode == ModeRelay && kind != "" {
		body, err := ReadBody(httpResp)
		if err != nil {
			return model.ResponseData{}, err
		}
		return model.ResponseData{}, relayFailure(kind, body)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    NormalizeHeaders(httpResp.Header),
	}
	if resp.IsImage() {
		resp.Body = []byte(prepared.targetURL)
	} else {
		resp.Body, err = ReadBody(httpResp)
		if err != nil {
			return model.ResponseData{}, err
		}
	}
	return resp.ResponseData(), nil
}
