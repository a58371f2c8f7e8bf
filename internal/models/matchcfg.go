package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// TokenizerType selects the feature family of the vectorizer.
type TokenizerType string

const (
	TokenizerWord    TokenizerType = "WORD"
	TokenizerSubword TokenizerType = "SUBWORD"
)

// CosineMode selects exact or approximate cosine matching.
type CosineMode string

const (
	CosineExact       CosineMode = "EXACT"
	CosineApproximate CosineMode = "APPROXIMATE"
)

// PreprocessingOption toggles the individual text-normalization steps. The
// same option set must be applied to both corpora for scores to be meaningful.
type PreprocessingOption struct {
	CaseSensitive         bool `json:"case_sensitive"`
	LegalFormProcessing   bool `json:"company_legal_form_processing"`
	InitialAbbrProcessing bool `json:"initial_abbr_processing"`
	PunctuationRemoval    bool `json:"punctuation_removal"`
	AccentNormalize       bool `json:"accented_char_normalize"`
	ShorthandProcessing   bool `json:"shorthands_format_processing"`
}

// AlgorithmOption selects the matcher and its knobs.
type AlgorithmOption struct {
	Preprocessing PreprocessingOption `json:"preprocessing_option"`
	Tokenizer     TokenizerType       `json:"tokenizer_option"`
	CosineMode    CosineMode          `json:"cos_match_type"`
}

// SearchOption bounds the candidate selection per query.
type SearchOption struct {
	TopN         int      `json:"top_n"`
	Threshold    float64  `json:"threshold"`
	SelectedCols []string `json:"selected_cols"`
}

// Fingerprint is a derived key over the configuration subset that invalidates
// a fitted index: the preprocessing options and the tokenizer selection.
// Search options (top-n, threshold, echo columns) deliberately do not
// participate, so tuning them never triggers a refit.
func (a AlgorithmOption) Fingerprint() string {
	payload := struct {
		Prep      PreprocessingOption `json:"prep"`
		Tokenizer TokenizerType       `json:"tokenizer"`
	}{a.Preprocessing, a.Tokenizer}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
