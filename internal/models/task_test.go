package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

func TestResourceNaming(t *testing.T) {
	assert.Equal(t, "nm-42-7", models.ResourcePrefix(7, 42))
	assert.Equal(t, "nm-42-7-channel", models.StopChannelName(7, 42))
}

func TestTTLPolicyDuration(t *testing.T) {
	t.Run("disabled policy has no limit", func(t *testing.T) {
		d, err := models.TTLPolicy{Enabled: false, TTL: "30m"}.Duration()
		require.NoError(t, err)
		assert.Zero(t, d)
	})

	t.Run("enabled policy parses", func(t *testing.T) {
		d, err := models.TTLPolicy{Enabled: true, TTL: "90m"}.Duration()
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, d)
	})

	t.Run("invalid duration errors", func(t *testing.T) {
		_, err := models.TTLPolicy{Enabled: true, TTL: "soon"}.Duration()
		assert.Error(t, err)
	})
}

func TestAlgorithmFingerprint(t *testing.T) {
	base := models.AlgorithmOption{
		Preprocessing: models.PreprocessingOption{PunctuationRemoval: true},
		Tokenizer:     models.TokenizerWord,
	}

	t.Run("stable for equal configuration", func(t *testing.T) {
		same := base
		assert.Equal(t, base.Fingerprint(), same.Fingerprint())
	})

	t.Run("cosine mode does not participate", func(t *testing.T) {
		approx := base
		approx.CosineMode = models.CosineApproximate
		assert.Equal(t, base.Fingerprint(), approx.Fingerprint())
	})

	t.Run("tokenizer changes the fingerprint", func(t *testing.T) {
		sub := base
		sub.Tokenizer = models.TokenizerSubword
		assert.NotEqual(t, base.Fingerprint(), sub.Fingerprint())
	})

	t.Run("preprocessing changes the fingerprint", func(t *testing.T) {
		folded := base
		folded.Preprocessing.AccentNormalize = true
		assert.NotEqual(t, base.Fingerprint(), folded.Fingerprint())
	})
}

func TestTaskConfigRoundTrip(t *testing.T) {
	task := &models.Task{
		ID: 7,
		Config: models.TaskConfig{
			GroundTruth: models.DatasetConfig{DatasetID: 1, SearchKey: "name"},
			Tier:        models.TierLarge,
			TTLPolicy:   models.TTLPolicy{Enabled: true, TTL: "1h"},
			Search:      models.SearchOption{TopN: 5, Threshold: 0.3},
			Algorithm:   models.AlgorithmOption{Tokenizer: models.TokenizerSubword},
		},
	}
	require.NoError(t, task.EncodeConfig())

	decoded := &models.Task{ID: 7, ConfigJSON: task.ConfigJSON}
	require.NoError(t, decoded.DecodeConfig())
	assert.Equal(t, task.Config, decoded.Config)
}
