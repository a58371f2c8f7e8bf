package matching

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

const groundTruthCSV = `name,country
Zhe Sun,CN
Bayern Munich,DE
John Smith,UK
Dirk Nowitzki,DE
`

const toMatchCSV = `name
Zhe Chines Sun
Chandler Nothing found
`

func writeDataset(t *testing.T, root string, id int64, content string) {
	t.Helper()
	path := filepath.Join(root, dataset.DatasetKey(id))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testTaskConfig() models.TaskConfig {
	return models.TaskConfig{
		GroundTruth: models.DatasetConfig{DatasetID: 1, SearchKey: "name"},
		ToMatch:     models.DatasetConfig{DatasetID: 2, SearchKey: "name"},
		Search:      models.SearchOption{TopN: 2, Threshold: 0.01, SelectedCols: []string{"country"}},
		Algorithm:   models.AlgorithmOption{Tokenizer: models.TokenizerWord, CosineMode: models.CosineExact},
	}
}

func TestMatcherEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, 1, groundTruthCSV)

	m := NewMatcher(&dataset.FSStore{Root: root})
	cfg := testTaskConfig()
	require.NoError(t, m.Refresh(context.Background(), cfg))

	result, err := m.MatchNames([]string{"Zhe Chines Sun", "Chandler Nothing found"}, cfg.Search)
	require.NoError(t, err)

	assert.Equal(t, []string{"nm_name", "gt_row_no", "matched_name", "score", "country"}, result.Columns)
	require.Len(t, result.Rows, 2)

	// two of three query tokens are in vocabulary, cosine 1.0 scaled by 2/3
	assert.Equal(t, []string{"Zhe Chines Sun", "0", "Zhe Sun", "0.6667", "CN"}, result.Rows[0])
	// no candidate clears the threshold: exactly one sentinel row
	assert.Equal(t, []string{"Chandler Nothing found", "-1", "N/A", "0.0000", "N/A"}, result.Rows[1])
}

func TestMatcherRejectsApproximateCosine(t *testing.T) {
	m := NewMatcher(&dataset.FSStore{Root: t.TempDir()})
	cfg := testTaskConfig()
	cfg.Algorithm.CosineMode = models.CosineApproximate

	err := m.Refresh(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, taskerr.IsKind(err, taskerr.KindConfigFingerprint))
}

type countingStore struct {
	dataset.Store
	loads int
}

func (c *countingStore) LoadTable(ctx context.Context, key string) (*dataset.Table, error) {
	c.loads++
	return c.Store.LoadTable(ctx, key)
}

func TestMatcherRefreshCascade(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, 1, groundTruthCSV)
	writeDataset(t, root, 3, groundTruthCSV)

	ds := &countingStore{Store: &dataset.FSStore{Root: root}}
	m := NewMatcher(ds)
	cfg := testTaskConfig()
	ctx := context.Background()

	require.NoError(t, m.Refresh(ctx, cfg))
	assert.Equal(t, 1, ds.loads)
	fp := m.Fingerprint()

	t.Run("unchanged configuration is free", func(t *testing.T) {
		require.NoError(t, m.Refresh(ctx, cfg))
		assert.Equal(t, 1, ds.loads)
		assert.Equal(t, fp, m.Fingerprint())
	})

	t.Run("search tuning does not refit", func(t *testing.T) {
		tuned := cfg
		tuned.Search.Threshold = 0.5
		tuned.Search.TopN = 10
		require.NoError(t, m.Refresh(ctx, tuned))
		assert.Equal(t, 1, ds.loads)
		assert.Equal(t, fp, m.Fingerprint())
	})

	t.Run("tokenizer change refits without reloading", func(t *testing.T) {
		sub := cfg
		sub.Algorithm.Tokenizer = models.TokenizerSubword
		require.NoError(t, m.Refresh(ctx, sub))
		assert.Equal(t, 1, ds.loads)
		assert.NotEqual(t, fp, m.Fingerprint())

		// back to the original configuration reruns the fit stage only
		require.NoError(t, m.Refresh(ctx, cfg))
		assert.Equal(t, 1, ds.loads)
		assert.Equal(t, fp, m.Fingerprint())
	})

	t.Run("dataset change reruns the whole cascade", func(t *testing.T) {
		moved := cfg
		moved.GroundTruth.DatasetID = 3
		require.NoError(t, m.Refresh(ctx, moved))
		assert.Equal(t, 2, ds.loads)
	})
}

func TestBatchRunnerExecute(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, 1, groundTruthCSV)
	writeDataset(t, root, 2, toMatchCSV)

	ctx := context.Background()
	taskStore := store.NewMemoryStore()
	task := &models.Task{
		OwnerID: 42,
		Name:    "nightly-batch",
		Type:    models.TaskTypeBatch,
		Config:  testTaskConfig(),
	}
	require.NoError(t, taskStore.CreateTask(ctx, task))
	require.NoError(t, taskStore.SetTaskStatus(ctx, task.ID, models.StatusPreparing))
	require.NoError(t, taskStore.SetTaskStatus(ctx, task.ID, models.StatusLaunching))

	runner := &BatchRunner{Store: taskStore, Datasets: &dataset.FSStore{Root: root}}
	require.NoError(t, runner.Execute(ctx, task.ID))

	got, err := taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTerminating, got.Status)
	require.NotEmpty(t, got.Config.ResultKey)

	result, err := dataset.ReadCSVFile(filepath.Join(root, got.Config.ResultKey))
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumRows())
	assert.Equal(t, "Zhe Sun", result.Rows[0][2])
}

func TestBatchRunnerRejectsRealtimeTask(t *testing.T) {
	ctx := context.Background()
	taskStore := store.NewMemoryStore()
	task := &models.Task{
		OwnerID: 42,
		Type:    models.TaskTypeRealtime,
		Config:  testTaskConfig(),
	}
	require.NoError(t, taskStore.CreateTask(ctx, task))

	runner := &BatchRunner{Store: taskStore, Datasets: &dataset.FSStore{Root: t.TempDir()}}
	err := runner.Execute(ctx, task.ID)
	require.Error(t, err)
	assert.True(t, taskerr.IsKind(err, taskerr.KindTaskTypeMismatch))
}

func TestRealtimeMatcherQueryPicksUpConfigChanges(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, 1, groundTruthCSV)

	ctx := context.Background()
	taskStore := store.NewMemoryStore()
	task := &models.Task{
		OwnerID: 42,
		Type:    models.TaskTypeRealtime,
		Config:  testTaskConfig(),
	}
	require.NoError(t, taskStore.CreateTask(ctx, task))

	rm := &RealtimeMatcher{Store: taskStore, Datasets: &dataset.FSStore{Root: root}, TaskID: task.ID}
	require.NoError(t, rm.Warm(ctx))

	result, err := rm.Query(ctx, []string{"Zhe Chines Sun"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "0.6667", result.Rows[0][3])

	// raise the threshold above the best score; the next query must see it
	task.Config.Search.Threshold = 0.9
	require.NoError(t, taskStore.UpdateTaskConfig(ctx, task))

	result, err = rm.Query(ctx, []string{"Zhe Chines Sun"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "-1", result.Rows[0][1])
}
