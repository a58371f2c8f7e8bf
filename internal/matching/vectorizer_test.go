package matching

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

func TestWordTokens(t *testing.T) {
	assert.Equal(t, []string{"zhe", "sun"}, wordTokens("zhe sun"))
	// single-character words carry no signal and are dropped
	assert.Nil(t, wordTokens("a b c"))
	assert.Equal(t, []string{"ab", "cd"}, wordTokens("ab c cd"))
}

func TestCharTokens(t *testing.T) {
	// words are padded with spaces before the 3-gram window slides
	assert.Equal(t, []string{" ab", "ab ", " cd", "cd "}, charTokens("ab cd"))
	assert.Equal(t, []string{" x "}, charTokens("x"))
}

func TestNewVectorizerRejectsUnknownTokenizer(t *testing.T) {
	_, err := NewVectorizer(models.TokenizerType("EDIT_DISTANCE"))
	require.Error(t, err)
	assert.True(t, taskerr.IsKind(err, taskerr.KindConfigFingerprint))
}

func TestVectorizerFit(t *testing.T) {
	v, err := NewVectorizer(models.TokenizerWord)
	require.NoError(t, err)

	vectors := v.Fit([]string{"aa bb", "aa cc"})
	require.Len(t, vectors, 2)

	// smoothed idf: shared term weighs ln(3/3)+1 = 1, unique terms
	// ln(3/2)+1
	idfShared := 1.0
	idfUnique := math.Log(3.0/2.0) + 1

	norm := math.Sqrt(idfShared*idfShared + idfUnique*idfUnique)
	require.Len(t, vectors[0].Values, 2)
	// vocabulary is sorted, so index 0 is "aa"
	assert.InDelta(t, idfShared/norm, vectors[0].Values[0], 1e-12)
	assert.InDelta(t, idfUnique/norm, vectors[0].Values[1], 1e-12)

	// all fitted vectors are unit length
	for _, vec := range vectors {
		var sum float64
		for _, val := range vec.Values {
			sum += val * val
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestVectorizerTransformRescalesOutOfVocabulary(t *testing.T) {
	v, err := NewVectorizer(models.TokenizerWord)
	require.NoError(t, err)
	v.Fit([]string{"zhe sun", "dirk nowitzki"})

	t.Run("fully in vocabulary", func(t *testing.T) {
		q := v.Transform([]string{"zhe sun"})
		require.Len(t, q, 1)
		var sum float64
		for _, val := range q[0].Values {
			sum += val * val
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	})

	t.Run("one of three tokens unknown", func(t *testing.T) {
		q := v.Transform([]string{"zhe chines sun"})
		require.Len(t, q, 1)
		var sum float64
		for _, val := range q[0].Values {
			sum += val * val
		}
		// norm shrinks to the in-vocabulary ratio 2/3
		assert.InDelta(t, 2.0/3.0, math.Sqrt(sum), 1e-12)
	})

	t.Run("nothing in vocabulary", func(t *testing.T) {
		q := v.Transform([]string{"completely unknown"})
		require.Len(t, q, 1)
		assert.Empty(t, q[0].Indices)
	})
}
