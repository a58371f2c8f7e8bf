package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniframe-io/uniframe-backend/internal/api"
	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/matching"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

func newRealtimeServer(t *testing.T) *api.RealtimeServer {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	path := filepath.Join(root, dataset.DatasetKey(1))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("name,country\nZhe Sun,CN\nBayern Munich,DE\n"), 0o644))

	s := store.NewMemoryStore()
	task := &models.Task{
		OwnerID: 42,
		Name:    "rt",
		Type:    models.TaskTypeRealtime,
		Config: models.TaskConfig{
			GroundTruth: models.DatasetConfig{DatasetID: 1, SearchKey: "name"},
			Search:      models.SearchOption{TopN: 1, Threshold: 0.01, SelectedCols: []string{"country"}},
			Algorithm:   models.AlgorithmOption{Tokenizer: models.TokenizerWord, CosineMode: models.CosineExact},
		},
	}
	require.NoError(t, s.CreateTask(ctx, task))

	matcher := &matching.RealtimeMatcher{
		Store:    s,
		Datasets: &dataset.FSStore{Root: root},
		TaskID:   task.ID,
	}
	require.NoError(t, matcher.Warm(ctx))

	return api.NewRealtimeServer(s, matcher)
}

func TestRealtimeHeartbeat(t *testing.T) {
	server := newRealtimeServer(t)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/heartbeat", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRealtimeMatchEndpoint(t *testing.T) {
	server := newRealtimeServer(t)

	t.Run("answers candidate rows with the search options used", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nm-realtime?q=Zhe+Chines+Sun", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var out api.MatchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, []string{"nm_name", "gt_row_no", "matched_name", "score", "country"}, out.Columns)
		require.Len(t, out.Rows, 1)
		assert.Equal(t, []string{"Zhe Chines Sun", "0", "Zhe Sun", "0.6667", "CN"}, out.Rows[0])
		assert.Equal(t, 1, out.Search.TopN)
	})

	t.Run("a query parameter is required", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nm-realtime", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// Every HTTP request runs on its own goroutine, so the worker must answer
// parallel queries without corrupting the shared index.
func TestRealtimeMatchConcurrent(t *testing.T) {
	server := newRealtimeServer(t)

	const workers = 8
	const queriesPerWorker = 50

	var wg sync.WaitGroup
	codes := make(chan int, workers*queriesPerWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < queriesPerWorker; j++ {
				w := httptest.NewRecorder()
				server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nm-realtime?q=Zhe+Chines+Sun", nil))
				codes <- w.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}
}
