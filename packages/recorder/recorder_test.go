package recorder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

type failingStore struct{}

func (failingStore) SaveResults(context.Context, []model.TestResult) error {
	return errors.New("disk full")
}

func rawResults() []model.TestResult {
	now := time.Now()
	return []model.TestResult{
		{ID: "a", TestName: "first", Passed: true, Timestamp: now},
		{ID: "b", TestName: "second", Passed: false, Message: "Expected 5 to be below 3", Timestamp: now},
	}
}

func TestRecord_StampsRequestAndResponse(t *testing.T) {
	store := NewMemoryStore()
	rec := New(store)
	req := model.RequestConfig{ID: "req-1", Method: "GET", URL: "https://api.example.com"}
	resp := model.ResponseData{Status: 200, Headers: map[string]string{"a": "b"}}

	out := rec.Record(context.Background(), "req-1", req, resp, rawResults())

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].TestName)
	assert.Equal(t, "second", out[1].TestName)
	for _, r := range out {
		assert.Equal(t, "req-1", r.RequestID)
		require.NotNil(t, r.Request)
		require.NotNil(t, r.Response)
		assert.Equal(t, "https://api.example.com", r.Request.URL)
		assert.Equal(t, 200, r.Response.Status)
	}
	assert.Equal(t, out, store.ResultsFor("req-1"))
	assert.Empty(t, store.ResultsFor("other"))
}

func TestRecord_SnapshotsAreIndependent(t *testing.T) {
	rec := New(nil)
	resp := model.ResponseData{Status: 200, Headers: map[string]string{"a": "b"}}

	out := rec.Record(context.Background(), "r", model.RequestConfig{}, resp, rawResults())
	resp.Headers["a"] = "changed"

	assert.Equal(t, "b", out[0].Response.Headers["a"])
}

func TestRecord_StoreErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := New(failingStore{}, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	out := rec.Record(context.Background(), "r", model.RequestConfig{}, model.ResponseData{}, rawResults())

	assert.Len(t, out, 2)
	assert.Contains(t, buf.String(), "disk full")
}

func TestRecord_Empty(t *testing.T) {
	store := NewMemoryStore()
	out := New(store).Record(context.Background(), "r", model.RequestConfig{}, model.ResponseData{}, nil)
	assert.Empty(t, out)
	assert.Empty(t, store.Results())
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveResults(context.Background(), rawResults()))
	assert.Len(t, store.Results(), 2)
	store.Clear()
	assert.Empty(t, store.Results())
}
