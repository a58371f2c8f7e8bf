// Package matching implements the TF-IDF cosine name-matching engine: text
// normalization, vectorization, sparse top-N retrieval and result assembly.
package matching

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// Matcher holds a fitted matching index over one ground-truth dataset. It is
// the long-lived object inside a realtime worker; a batch worker builds one,
// matches once and exits. Matcher is not safe for concurrent use; callers
// serialize Refresh and MatchNames.
type Matcher struct {
	store dataset.Store

	// cache keys of the fitted state
	gtKey       string
	searchKey   string
	prepKey     string
	tokenizer   models.TokenizerType
	fingerprint string

	prep      *Preprocessor
	gt        *dataset.Table
	gtNames   []string
	gtClean   []string
	vec       *Vectorizer
	gtVectors []SparseVector
}

func NewMatcher(store dataset.Store) *Matcher {
	return &Matcher{store: store}
}

// Fingerprint returns the fingerprint of the currently fitted configuration,
// or the empty string before the first Refresh.
func (m *Matcher) Fingerprint() string { return m.fingerprint }

// validate rejects configurations the engine cannot serve before any fit
// work is spent on them.
func validate(cfg models.TaskConfig) error {
	switch cfg.Algorithm.CosineMode {
	case models.CosineExact, "":
	case models.CosineApproximate:
		return taskerr.New(taskerr.KindConfigFingerprint,
			"approximate cosine matching is not supported")
	default:
		return taskerr.New(taskerr.KindConfigFingerprint,
			"cosine mode %q is not supported", cfg.Algorithm.CosineMode)
	}
	if _, err := NewVectorizer(cfg.Algorithm.Tokenizer); err != nil {
		return err
	}
	return nil
}

// Refresh brings the fitted state in line with the given configuration. The
// pipeline is an ordered cascade: loading the ground-truth column, applying
// preprocessing, fitting the vectorizer. Each stage reruns when its own
// inputs changed or when any earlier stage reran, never otherwise, so a
// threshold tweak costs nothing and a tokenizer change refits without
// re-downloading the dataset.
func (m *Matcher) Refresh(ctx context.Context, cfg models.TaskConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}

	gtKey := dataset.DatasetKey(cfg.GroundTruth.DatasetID)
	searchKey := cfg.GroundTruth.SearchKey
	prepKey := prepCacheKey(cfg.Algorithm.Preprocessing)
	tokenizer := cfg.Algorithm.Tokenizer

	type stage struct {
		name    string
		changed bool
		run     func(context.Context) error
	}
	stages := []stage{
		{
			name:    "load",
			changed: gtKey != m.gtKey || searchKey != m.searchKey,
			run: func(ctx context.Context) error {
				table, err := m.store.LoadTable(ctx, gtKey)
				if err != nil {
					return err
				}
				names, err := table.Column(searchKey)
				if err != nil {
					return err
				}
				m.gt, m.gtNames = table, names
				m.gtKey, m.searchKey = gtKey, searchKey
				return nil
			},
		},
		{
			name:    "preprocess",
			changed: prepKey != m.prepKey,
			run: func(context.Context) error {
				m.prep = NewPreprocessor(cfg.Algorithm.Preprocessing)
				m.gtClean = m.prep.Apply(m.gtNames, true)
				m.prepKey = prepKey
				return nil
			},
		},
		{
			name:    "fit",
			changed: tokenizer != m.tokenizer,
			run: func(context.Context) error {
				vec, err := NewVectorizer(tokenizer)
				if err != nil {
					return err
				}
				m.gtVectors = vec.Fit(m.gtClean)
				m.vec = vec
				m.tokenizer = tokenizer
				return nil
			},
		},
	}

	force := false
	for _, s := range stages {
		if !force && !s.changed {
			continue
		}
		start := time.Now()
		if err := s.run(ctx); err != nil {
			return err
		}
		log.Debug().
			Str("stage", s.name).
			Dur("elapsed", time.Since(start)).
			Msg("Refreshed matching stage")
		force = true
	}

	// only written on actual change, keeping a no-op refresh read-only
	if fp := cfg.Algorithm.Fingerprint(); fp != m.fingerprint {
		m.fingerprint = fp
	}
	return nil
}

// MatchNames matches the given query names against the fitted ground truth
// and assembles the result table. Refresh must have succeeded at least once.
func (m *Matcher) MatchNames(queries []string, search models.SearchOption) (*dataset.Table, error) {
	if m.vec == nil {
		return nil, taskerr.New(taskerr.KindConfigFingerprint, "matcher has not been fitted")
	}

	clean := m.prep.Apply(queries, false)
	qv := m.vec.Transform(clean)
	candidates := TopN(m.gtVectors, qv, search.TopN, search.Threshold)
	return AssembleResult(queries, m.gt, m.searchKey, search.SelectedCols, candidates)
}

// prepCacheKey is a cheap change detector for the preprocessing options.
func prepCacheKey(opt models.PreprocessingOption) string {
	raw, _ := json.Marshal(opt)
	return string(raw)
}
