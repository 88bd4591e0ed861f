package results_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/types"
)

func tempStore(t *testing.T, maxRuns int) *results.Store {
	t.Helper()
	s, err := results.New(filepath.Join(t.TempDir(), "runs.db"), maxRuns)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sampleRun(id string, finished time.Time) results.Run {
	res := types.Result{
		RunID:       id,
		ManifestURL: "https://cdn.example.com/ll/manifest.mpd",
		Reason:      types.FinishTimeout,
		LastState:   types.StatePlaying,
		StartedAt:   finished.Add(-5 * time.Second),
		FinishedAt:  finished,
		Duration:    5 * time.Second,
	}
	summary := map[types.Label]types.LabelStats{
		types.LabelBufferSize: {Count: 3, Min: 1, Max: 3, Avg: 2, Last: 3},
	}
	return results.RunFromResult(res, true, "timeout", summary, 3)
}

func TestStoreSaveAndGet(t *testing.T) {
	store := tempStore(t, 100)
	now := time.Now().UTC().Truncate(time.Millisecond)
	samples := []types.Sample{
		{Label: types.LabelPlaybackRate, Value: 1, At: now},
		{Label: types.LabelBufferSize, Value: 2.5, At: now.Add(100 * time.Millisecond)},
		{Label: types.LabelVideoBitrate, Value: 1_500_000, At: now.Add(150 * time.Millisecond)},
	}

	require.NoError(t, store.Save(sampleRun("run-1", now), samples))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://cdn.example.com/ll/manifest.mpd", got.ManifestURL)
	assert.Equal(t, types.FinishTimeout, got.Reason)
	assert.Equal(t, types.StatePlaying, got.LastState)
	assert.True(t, got.LowLatency)
	assert.Equal(t, int64(5000), got.DurationMs)
	assert.Equal(t, 3, got.SampleCount)
	assert.Equal(t, 2.0, got.Summary[types.LabelBufferSize].Avg)

	stored, err := store.Samples("run-1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, types.LabelBufferSize, stored[1].Label)
	assert.Equal(t, 2.5, stored[1].Value)
	assert.True(t, stored[2].At.Equal(samples[2].At))
}

func TestStoreGetNotFound(t *testing.T) {
	store := tempStore(t, 100)

	got, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreSaveDuplicateID(t *testing.T) {
	store := tempStore(t, 100)
	now := time.Now().UTC()

	require.NoError(t, store.Save(sampleRun("dup", now), nil))
	assert.Error(t, store.Save(sampleRun("dup", now), nil))
}

func TestStoreListNewestFirst(t *testing.T) {
	store := tempStore(t, 100)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute)), nil))
	}

	runs, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
}

func TestStoreTrimToMax(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trim.db")

	store, err := results.New(dbPath, 0)
	require.NoError(t, err)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		smp := []types.Sample{{Label: types.LabelPlaybackRate, Value: 1, At: base}}
		require.NoError(t, store.Save(sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute)), smp))
	}
	store.Close()

	// Reopen with a limit; cleanup runs on open.
	store, err = results.New(dbPath, 3)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)

	gone, err := store.Samples("run-0")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestHandlerGetAndSamples(t *testing.T) {
	store := tempStore(t, 100)
	now := time.Now().UTC()
	require.NoError(t, store.Save(sampleRun("abc-123", now), []types.Sample{
		{Label: types.LabelAudioBitrate, Value: 128_000, At: now},
	}))

	h := results.NewHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", h.List)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/runs/{id}/samples", h.Samples)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc-123", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "abc-123", run.ID)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc-123/samples", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RunID   string         `json:"run_id"`
		Samples []types.Sample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Samples, 1)
	assert.Equal(t, types.LabelAudioBitrate, body.Samples[0].Label)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"abc-123"`)
}

func TestHandlerErrors(t *testing.T) {
	store := tempStore(t, 100)
	h := results.NewHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", h.List)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Get)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/runs/nope", http.StatusNotFound},
		{"/api/v1/runs/bad$id", http.StatusBadRequest},
		{"/api/v1/runs?limit=0", http.StatusBadRequest},
		{"/api/v1/runs?limit=abc", http.StatusBadRequest},
		{"/api/v1/runs?limit=10", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}
}
