package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	reqlyhttp "github.com/abdul-hamid-achik/reqly/packages/http"
	"github.com/abdul-hamid-achik/reqly/packages/recorder"
)

type memoryHistory struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
	err     error
}

func (m *memoryHistory) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func script(id, requestID string, typ model.ScriptType, code string) model.TestScript {
	return model.TestScript{ID: id, Name: id, Code: code, Type: typ, RequestID: requestID}
}

func TestNewRunner(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		r := NewRunner(nil)
		assert.NotNil(t, r)
		assert.NotNil(t, r.dispatcher)
		assert.NotNil(t, r.sandbox)
		assert.NotNil(t, r.recorder)
	})

	t.Run("with custom config", func(t *testing.T) {
		cfg := &Config{
			Timeout:     5 * time.Second,
			Concurrency: 10,
			Bail:        true,
		}
		r := NewRunner(cfg)
		assert.Equal(t, 10, r.config.Concurrency)
		assert.True(t, r.config.Bail)
	})
}

func TestRunner_Run(t *testing.T) {
	var gotTrace []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Values("X-Trace")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/users/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id": 42, "token": "t-1"}`))
	}))
	defer server.Close()

	history := &memoryHistory{}
	results := recorder.NewMemoryStore()
	r := NewRunner(&Config{}, WithHistory(history), WithResultStore(results))

	job := Job{
		Request: model.RequestConfig{ID: "req-1", Method: "GET", URL: server.URL + "/users/{{uid}}"},
		Scripts: []model.TestScript{
			script("pre", "req-1", model.ScriptPreRequest, `
pm.request.headers.upsert({key: "X-Trace", value: "1"});
pm.request.headers.upsert({key: "X-Trace", value: "1"});`),
			script("tests", "req-1", model.ScriptTest, `
pm.test("status ok", () => pm.expect(pm.response.status).to.be.equal(200));
pm.test("id", () => pm.expect(pm.response.json().id).to.equal(42));
pm.environment.set("token", pm.response.json().token);`),
			script("other", "req-2", model.ScriptTest, `pm.test("never", () => {});`),
		},
		Environment: &model.Environment{Variables: []model.KeyValue{{Key: "uid", Value: "42", Enabled: true}}},
	}

	outcome, err := r.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, gotTrace)
	assert.Equal(t, 200, outcome.Response.Status)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, 2, outcome.Passed())
	assert.True(t, outcome.OK())
	for _, res := range outcome.Results {
		assert.Equal(t, "req-1", res.RequestID)
		require.NotNil(t, res.Response)
		assert.Equal(t, 200, res.Response.Status)
	}
	assert.Equal(t, []model.KeyValue{{Key: "token", Value: "t-1", Enabled: true}}, outcome.EnvironmentWrites)
	assert.Len(t, results.ResultsFor("req-1"), 2)

	require.Len(t, history.entries, 1)
	assert.Equal(t, "req-1", history.entries[0].Request.ID)
	assert.Equal(t, 200, history.entries[0].Response.Status)
}

func TestRunner_Run_StatusMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := NewRunner(nil)
	outcome, err := r.Run(context.Background(), Job{
		Request: model.RequestConfig{ID: "r", Method: "GET", URL: server.URL},
		Scripts: []model.TestScript{
			script("t", "r", model.ScriptTest, `pm.test("status ok", () => pm.expect(pm.response.status).to.be.equal(200));`),
		},
	})
	require.NoError(t, err)

	require.Len(t, outcome.Results, 1)
	assert.False(t, outcome.Results[0].Passed)
	assert.Contains(t, outcome.Results[0].Message, "404")
	assert.False(t, outcome.OK())
}

func TestRunner_Run_PreRequestWritesResolveFirst(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	r := NewRunner(nil)
	req := model.RequestConfig{
		ID:      "r",
		Method:  "GET",
		URL:     server.URL,
		Headers: []model.KeyValue{{Key: "Authorization", Value: "Bearer {{token}}", Enabled: true}},
	}
	outcome, err := r.Run(context.Background(), Job{
		Request: req,
		Scripts: []model.TestScript{
			script("p1", "r", model.ScriptPreRequest, `pm.environment.set("token", "fresh-" + pm.environment.get("token"));`),
		},
		Environment: &model.Environment{Variables: []model.KeyValue{{Key: "token", Value: "stale", Enabled: true}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer fresh-stale", gotAuth)
	assert.Equal(t, []model.KeyValue{{Key: "token", Value: "fresh-stale", Enabled: true}}, outcome.EnvironmentWrites)
}

func TestRunner_Run_FailingPreRequestKeepsRequest(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Partial")
	}))
	defer server.Close()

	r := NewRunner(nil)
	outcome, err := r.Run(context.Background(), Job{
		Request: model.RequestConfig{ID: "r", Method: "GET", URL: server.URL},
		Scripts: []model.TestScript{
			script("p1", "r", model.ScriptPreRequest, `pm.request.headers.add({key: "X-Partial", value: "1"}); throw new Error("stop");`),
		},
	})
	require.NoError(t, err)

	assert.Empty(t, gotHeader)
	require.Len(t, outcome.PreRequestErrors, 1)
	assert.Equal(t, 200, outcome.Response.Status)
}

func TestRunner_Run_NetworkErrorStillRunsTests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	history := &memoryHistory{}
	r := NewRunner(nil, WithHistory(history))
	outcome, err := r.Run(context.Background(), Job{
		Request: model.RequestConfig{ID: "r", Method: "GET", URL: url},
		Scripts: []model.TestScript{
			script("t", "r", model.ScriptTest, `pm.test("status", () => pm.response.to.have.status(0));`),
		},
	})
	require.NoError(t, err)

	assert.True(t, outcome.Response.IsNetworkError())
	assert.Equal(t, reqlyhttp.NetworkErrorStatusText, outcome.Response.StatusText)
	require.Len(t, outcome.Results, 1)
	assert.True(t, outcome.Results[0].Passed)
	assert.False(t, outcome.OK())
	assert.Len(t, history.entries, 1)
}

func TestRunner_Run_HistoryErrorsAreNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	r := NewRunner(nil, WithHistory(&memoryHistory{err: errors.New("read-only")}))
	outcome, err := r.Run(context.Background(), Job{
		Request: model.RequestConfig{ID: "r", Method: "GET", URL: server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, outcome.Response.Status)
}

func TestRunner_Run_DispatchInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer server.Close()

	r := NewRunner(nil)
	job := Job{Request: model.RequestConfig{ID: "same", Method: "GET", URL: server.URL}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), job)
	}()
	<-started

	_, err := r.Run(context.Background(), job)
	assert.ErrorIs(t, err, reqlyhttp.ErrDispatchInFlight)

	close(release)
	<-done
}

func TestRunner_RunAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	check := `pm.test("ok", () => pm.response.to.have.status(200));`
	jobs := []Job{
		{Request: model.RequestConfig{ID: "a", Method: "GET", URL: server.URL + "/a"}, Scripts: []model.TestScript{script("a", "a", model.ScriptTest, check)}},
		{Request: model.RequestConfig{ID: "b", Method: "GET", URL: server.URL + "/fail"}, Scripts: []model.TestScript{script("b", "b", model.ScriptTest, check)}},
		{Request: model.RequestConfig{ID: "c", Method: "GET", URL: server.URL + "/c"}, Scripts: []model.TestScript{script("c", "c", model.ScriptTest, check)}},
	}

	t.Run("parallel", func(t *testing.T) {
		result := NewRunner(&Config{Concurrency: 2}).RunAll(context.Background(), jobs)
		require.Len(t, result.Outcomes, 3)
		assert.Equal(t, 2, result.Passed)
		assert.Equal(t, 1, result.Failed)
		assert.NoError(t, result.Err())
		assert.Equal(t, "b", result.Outcomes[1].Request.ID)
	})

	t.Run("bail", func(t *testing.T) {
		result := NewRunner(&Config{Bail: true}).RunAll(context.Background(), jobs)
		assert.Equal(t, 1, result.Passed)
		assert.Equal(t, 1, result.Failed)
		assert.Nil(t, result.Outcomes[2])
	})
}

func TestRunner_Run_ExtraScopes(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	r := NewRunner(nil)
	_, err := r.Run(context.Background(), Job{
		Request:     model.RequestConfig{ID: "r", Method: "GET", URL: server.URL + "/{{a}}/{{b}}"},
		Environment: &model.Environment{Variables: []model.KeyValue{{Key: "a", Value: "env", Enabled: true}}},
		Scopes:      []env.Scope{env.MapScope{"a": "ignored", "b": "extra"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/env/extra", gotPath)
}

func TestScriptsFor(t *testing.T) {
	scripts := []model.TestScript{
		script("1", "r", model.ScriptTest, ""),
		script("2", "r", model.ScriptPreRequest, ""),
		script("3", "other", model.ScriptTest, ""),
		script("4", "r", model.ScriptTest, ""),
		script("5", "", model.ScriptTest, ""),
	}
	pre, tests := scriptsFor("r", scripts)
	require.Len(t, pre, 1)
	assert.Equal(t, "2", pre[0].ID)
	require.Len(t, tests, 2)
	assert.Equal(t, "1", tests[0].ID)
	assert.Equal(t, "4", tests[1].ID)
}
