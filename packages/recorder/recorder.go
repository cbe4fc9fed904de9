package recorder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// Store persists recorded results. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveResults(ctx context.Context, results []model.TestResult) error
}

// Recorder binds raw script results to the request and response that
// produced them.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Recorder. A nil store records without persisting.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps requestID and snapshots of request and response onto every
// result, forwards the list to the store and returns it in call order. Store
// failures are logged and never returned.
func (r *Recorder) Record(ctx context.Context, requestID string, request model.RequestConfig, response model.ResponseData, raw []model.TestResult) []model.TestResult {
	if len(raw) == 0 {
		return nil
	}
	req := request.Clone()
	resp := response.Clone()

	out := make([]model.TestResult, len(raw))
	for i, result := range raw {
		result.RequestID = requestID
		result.Request = &req
		result.Response = &resp
		out[i] = result
	}

	if r.store != nil {
		if err := r.store.SaveResults(ctx, out); err != nil {
			r.logger.Warn("failed to persist test results",
				"requestId", requestID, "count", len(out), "error", err)
		}
	}
	return out
}

// MemoryStore keeps results in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	results []model.TestResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveResults(_ context.Context, results []model.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
	return nil
}

// Results returns a copy of everything recorded so far.
func (m *MemoryStore) Results() []model.TestResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TestResult, len(m.results))
	copy(out, m.results)
	return out
}

// ResultsFor returns the results recorded for one request id.
func (m *MemoryStore) ResultsFor(requestID string) []model.TestResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TestResult
	for _, r := range m.results {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = nil
}
