package matching

import (
	"math"
	"regexp"
	"sort"

	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// SparseVector is an l2-normalized bag-of-features row. Indices are sorted
// ascending and reference the fitted vocabulary.
type SparseVector struct {
	Indices []int
	Values  []float64
}

var wordTokenRe = regexp.MustCompile(`\w\w+`)

// wordTokens splits a preprocessed name into word features of two or more
// characters.
func wordTokens(name string) []string {
	return wordTokenRe.FindAllString(name, -1)
}

// charTokens produces character 3-grams with word boundaries: every word is
// padded with a space on both sides before the window slides over it.
func charTokens(name string) []string {
	var grams []string
	for _, word := range wordTokenSplit(name) {
		padded := []rune(" " + word + " ")
		if len(padded) <= 3 {
			grams = append(grams, string(padded))
			continue
		}
		for i := 0; i+3 <= len(padded); i++ {
			grams = append(grams, string(padded[i:i+3]))
		}
	}
	return grams
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func wordTokenSplit(name string) []string {
	var words []string
	for _, w := range whitespaceRe.Split(name, -1) {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Vectorizer builds TF-IDF representations of a corpus. Fit once per
// (corpus, configuration fingerprint) pair; Transform reuses the fitted
// vocabulary for the query side.
type Vectorizer struct {
	analyzer func(string) []string
	vocab    map[string]int
	idf      []float64
	terms    []string
}

// NewVectorizer selects the feature family. An unknown tokenizer fails fast
// before any fit work.
func NewVectorizer(tokenizer models.TokenizerType) (*Vectorizer, error) {
	v := &Vectorizer{}
	switch tokenizer {
	case models.TokenizerWord:
		v.analyzer = wordTokens
	case models.TokenizerSubword:
		v.analyzer = charTokens
	default:
		return nil, taskerr.New(taskerr.KindConfigFingerprint,
			"tokenizer option %q is not supported", tokenizer)
	}
	return v, nil
}

// Fit learns the vocabulary and inverse document frequencies of the
// ground-truth corpus and returns its vectorized rows.
func (v *Vectorizer) Fit(corpus []string) []SparseVector {
	// document frequencies over distinct terms per document
	df := make(map[string]int)
	docTerms := make([]map[string]int, len(corpus))
	for i, doc := range corpus {
		counts := make(map[string]int)
		for _, tok := range v.analyzer(doc) {
			counts[tok]++
		}
		docTerms[i] = counts
		for tok := range counts {
			df[tok]++
		}
	}

	// deterministic vocabulary: terms in lexicographic order
	terms := make([]string, 0, len(df))
	for tok := range df {
		terms = append(terms, tok)
	}
	sort.Strings(terms)

	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, tok := range terms {
		v.vocab[tok] = i
		// smoothed idf, never zero
		v.idf[i] = math.Log((1+n)/(1+float64(df[tok]))) + 1
	}

	vectors := make([]SparseVector, len(corpus))
	for i, counts := range docTerms {
		vectors[i] = v.vectorize(counts, 1.0)
	}
	return vectors
}

// Transform vectorizes query names with the fitted vocabulary. Out-of-
// vocabulary tokens are not silently dropped: each vector is rescaled by the
// ratio of in-vocabulary to distinct query tokens, so unknown words deflate
// the similarity score instead of inflating it.
func (v *Vectorizer) Transform(queries []string) []SparseVector {
	vectors := make([]SparseVector, len(queries))
	for i, q := range queries {
		counts := make(map[string]int)
		distinct := make(map[string]struct{})
		for _, tok := range v.analyzer(q) {
			distinct[tok] = struct{}{}
			if _, ok := v.vocab[tok]; ok {
				counts[tok]++
			}
		}

		scale := 0.0
		if len(distinct) > 0 {
			scale = float64(len(counts)) / float64(len(distinct))
		}
		vectors[i] = v.vectorize(counts, scale)
	}
	return vectors
}

// vectorize turns term counts into an l2-normalized tf-idf vector, then
// applies the given scale factor.
func (v *Vectorizer) vectorize(counts map[string]int, scale float64) SparseVector {
	indices := make([]int, 0, len(counts))
	for tok := range counts {
		if idx, ok := v.vocab[tok]; ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	// invert the vocab for count lookup by index
	values := make([]float64, len(indices))
	var norm float64
	for i, idx := range indices {
		tok := v.termAt(idx)
		w := float64(counts[tok]) * v.idf[idx]
		values[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range values {
			values[i] = values[i] / norm * scale
		}
	}
	return SparseVector{Indices: indices, Values: values}
}

// termAt resolves an index back to its term. The vocabulary is small enough
// to keep a reverse slice lazily.
func (v *Vectorizer) termAt(idx int) string {
	if v.terms == nil {
		v.terms = make([]string, len(v.vocab))
		for tok, i := range v.vocab {
			v.terms[i] = tok
		}
	}
	return v.terms[idx]
}
