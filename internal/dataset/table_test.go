package dataset_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniframe-io/uniframe-backend/internal/dataset"
)

func TestReadCSV(t *testing.T) {
	t.Run("header plus rows", func(t *testing.T) {
		table, err := dataset.ReadCSV(strings.NewReader("name,country\nZhe Sun,CN\nBayern Munich,DE\n"))
		require.NoError(t, err)

		assert.Equal(t, []string{"name", "country"}, table.Columns)
		assert.Equal(t, 2, table.NumRows())
		assert.Equal(t, []string{"Zhe Sun", "CN"}, table.Rows[0])
	})

	t.Run("short rows are padded", func(t *testing.T) {
		table, err := dataset.ReadCSV(strings.NewReader("name,country\nAcme\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Acme", ""}, table.Rows[0])
	})

	t.Run("empty stream has no header", func(t *testing.T) {
		_, err := dataset.ReadCSV(strings.NewReader(""))
		assert.Error(t, err)
	})

	t.Run("quoted cells survive a round trip", func(t *testing.T) {
		table := &dataset.Table{
			Columns: []string{"name"},
			Rows:    [][]string{{`Heineken, "N.V."`}},
		}
		var buf bytes.Buffer
		require.NoError(t, table.WriteCSV(&buf))

		back, err := dataset.ReadCSV(&buf)
		require.NoError(t, err)
		assert.Equal(t, table.Rows, back.Rows)
	})
}

func TestColumn(t *testing.T) {
	table := &dataset.Table{
		Columns: []string{"name", "country"},
		Rows:    [][]string{{"Zhe Sun", "CN"}, {"Bayern Munich", "DE"}},
	}

	assert.Equal(t, 1, table.ColumnIndex("country"))
	assert.Equal(t, -1, table.ColumnIndex("city"))

	col, err := table.Column("name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Zhe Sun", "Bayern Munich"}, col)

	_, err = table.Column("city")
	assert.Error(t, err)
}

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	store := &dataset.FSStore{Root: t.TempDir()}

	result := &dataset.Table{
		Columns: []string{"nm_name", "score"},
		Rows:    [][]string{{"acme corp", "0.8123"}},
	}
	key, err := store.SaveResult(ctx, 7, 42, result)
	require.NoError(t, err)
	assert.Contains(t, key, "results/42/7-")

	back, err := store.LoadTable(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, result.Columns, back.Columns)
	assert.Equal(t, result.Rows, back.Rows)

	u, err := store.ResultURL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, key)
}
