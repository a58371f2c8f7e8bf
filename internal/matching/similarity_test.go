package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopN(t *testing.T) {
	gt := []SparseVector{
		{Indices: []int{0}, Values: []float64{1}},
		{Indices: []int{1}, Values: []float64{1}},
		{Indices: []int{0, 1}, Values: []float64{0.6, 0.8}},
	}

	t.Run("keeps candidates above threshold sorted by score", func(t *testing.T) {
		q := []SparseVector{{Indices: []int{0}, Values: []float64{1}}}
		got := TopN(gt, q, 5, 0.1)
		require.Len(t, got, 1)
		require.Len(t, got[0], 2)
		assert.Equal(t, Candidate{Row: 0, Score: 1}, got[0][0])
		assert.Equal(t, Candidate{Row: 2, Score: 0.6}, got[0][1])
	})

	t.Run("threshold is strict", func(t *testing.T) {
		q := []SparseVector{{Indices: []int{0}, Values: []float64{1}}}
		got := TopN(gt, q, 5, 0.6)
		require.Len(t, got[0], 1)
		assert.Equal(t, 0, got[0][0].Row)
	})

	t.Run("top n truncates", func(t *testing.T) {
		q := []SparseVector{{Indices: []int{0}, Values: []float64{1}}}
		got := TopN(gt, q, 1, 0.1)
		require.Len(t, got[0], 1)
		assert.Equal(t, 0, got[0][0].Row)
	})

	t.Run("ties break on ascending row", func(t *testing.T) {
		tied := []SparseVector{
			{Indices: []int{0}, Values: []float64{1}},
			{Indices: []int{0}, Values: []float64{1}},
		}
		q := []SparseVector{{Indices: []int{0}, Values: []float64{0.5}}}
		got := TopN(tied, q, 5, 0.1)
		require.Len(t, got[0], 2)
		assert.Equal(t, 0, got[0][0].Row)
		assert.Equal(t, 1, got[0][1].Row)
	})

	t.Run("no shared features yields no candidates", func(t *testing.T) {
		q := []SparseVector{{Indices: []int{7}, Values: []float64{1}}}
		got := TopN(gt, q, 5, 0.0)
		assert.Empty(t, got[0])
	})

	t.Run("deterministic across repeated runs", func(t *testing.T) {
		q := []SparseVector{{Indices: []int{0, 1}, Values: []float64{0.7, 0.7}}}
		first := TopN(gt, q, 5, 0.0)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, TopN(gt, q, 5, 0.0))
		}
	})
}
