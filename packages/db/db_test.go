package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entry(id, url string, status int, ms int64, at time.Time) model.HistoryEntry {
	return model.HistoryEntry{
		ID:        id,
		Request:   model.RequestConfig{ID: "req-" + id, Name: "get " + id, Method: "get", URL: url},
		Response:  model.ResponseData{Status: status, StatusText: "OK", Headers: map[string]string{"content-type": "text/plain"}, Body: "ok", Time: ms, Size: 2},
		Timestamp: at,
	}
}

func TestOpen_ConnectionStrings(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		conn    string
		wantErr bool
	}{
		{"sqlite scheme", "sqlite://" + filepath.Join(dir, "a.db"), false},
		{"sqlite prefix", "sqlite:" + filepath.Join(dir, "b.db"), false},
		{"bare path", filepath.Join(dir, "c.db"), false},
		{"memory", ":memory:", false},
		{"empty", "", true},
		{"postgres", "postgres://user@localhost/db", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.conn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	require.NoError(t, store.AppendHistory(ctx, entry("1", "https://a.test", 200, 10, base)))
	require.NoError(t, store.AppendHistory(ctx, entry("2", "https://b.test", 404, 20, base.Add(time.Second))))
	require.NoError(t, store.AppendHistory(ctx, entry("3", "https://c.test", 0, 30, base.Add(2*time.Second))))

	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)
	assert.Equal(t, "1", all[2].ID)
	assert.Equal(t, "https://a.test", all[2].Request.URL)
	assert.Equal(t, "text/plain", all[2].Response.Headers["content-type"])
	assert.True(t, base.Equal(all[2].Timestamp))

	limited, err := store.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, store.ClearHistory(ctx))
	all, err = store.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResults_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	results := []model.TestResult{
		{ID: "a", RequestID: "r1", TestName: "status", Passed: true, Duration: 1, Timestamp: now},
		{ID: "b", RequestID: "r1", TestName: "body", Passed: false, Message: "Expected 5 to be below 3", Timestamp: now},
		{ID: "c", RequestID: "r2", TestName: "other", Passed: true, Timestamp: now},
	}
	require.NoError(t, store.SaveResults(ctx, results))
	require.NoError(t, store.SaveResults(ctx, nil))

	got, err := store.Results(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "status", got[0].TestName)
	assert.True(t, got[0].Passed)
	assert.Equal(t, "Expected 5 to be below 3", got[1].Message)
	assert.False(t, got[1].Passed)
}

func TestStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, ms := range []int64{10, 20, 30, 40, 100} {
		require.NoError(t, store.AppendHistory(ctx, entry(string(rune('a'+i)), "https://a.test", 200, ms, now)))
	}
	require.NoError(t, store.AppendHistory(ctx, entry("z", "https://down.test", 0, 60_000, now)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(5), stats.Success)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 30*time.Millisecond, stats.P50)

	require.Contains(t, stats.Endpoints, "GET https://a.test")
	assert.Equal(t, int64(5), stats.Endpoints["GET https://a.test"].Total)
	require.Contains(t, stats.Endpoints, "GET https://down.test")
	assert.Equal(t, int64(1), stats.Endpoints["GET https://down.test"].Errors)
}

func TestStats_Empty(t *testing.T) {
	stats, err := openTestStore(t).Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.Endpoints)
}
