package matching

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/uniframe-io/uniframe-backend/internal/models"
	"golang.org/x/text/unicode/norm"
)

// legalFormAbbr contains the company legal forms that are canonicalized to a
// single token (B. V. = B.V. = B V = BV).
var legalFormAbbr = map[string]struct{}{
	// Netherlands
	"bv": {}, "nv": {}, "vof": {},
	// Belgium
	"bvba": {}, "vzw": {}, "asbl": {}, "vog": {}, "snc": {}, "scs": {},
	"sca": {}, "sa": {}, "sprl": {}, "cvba": {}, "scrl": {},
	// Germany
	"gmbh": {}, "kgaa": {}, "ag": {}, "ohg": {},
	// Poland
	"ska": {}, "spzoo": {},
}

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	// a run of single-character units separated by dots and/or spaces,
	// e.g. "z. s.", "z.s.", "z s"
	abbrGroupRe = regexp.MustCompile(`(?:^|\s)((?:\w[.\s]+)+\w?\.?)(?:\s|$)`)
	abbrSepRe   = regexp.MustCompile(`[.\s]+`)

	shorthands = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`ver(?:eniging)? v(?:an)? (\w*)(?:eigenaren|eigenaars)`), "vve$1"},
		{regexp.MustCompile(`stichting`), "stg"},
		{regexp.MustCompile(`straat`), "str"},
	}
)

// legalAbbreviationsToWords maps the legal form abbreviations onto one
// canonical token: "b. v." and "b.v." and "b v" all become "bv".
func legalAbbreviationsToWords(name string) string {
	tokens := strings.Fields(name)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		joined := false
		// longest run first, at most four units per legal form
		for l := min(4, len(tokens)-i); l >= 1; l-- {
			collapsed := strings.ReplaceAll(strings.Join(tokens[i:i+l], ""), ".", "")
			if _, ok := legalFormAbbr[strings.ToLower(collapsed)]; ok {
				out = append(out, collapsed)
				i += l
				joined = true
				break
			}
		}
		if !joined {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

// abbreviationsToWords collapses runs of single-letter units into one token:
// "z. s." / "z.s." / "z s" all become "zs".
func abbreviationsToWords(name string) string {
	padded := name + " "
	matches := abbrGroupRe.FindAllStringSubmatch(padded, -1)
	for _, m := range matches {
		group := strings.TrimSpace(m[1])
		collapsed := abbrSepRe.ReplaceAllString(strings.ReplaceAll(group, ".", " "), "")
		// only collapse genuine abbreviation runs, not ordinary words
		if len([]rune(collapsed)) < 2 {
			continue
		}
		padded = strings.Replace(padded, group, collapsed, 1)
	}
	return strings.TrimSpace(padded)
}

// extractInitials appends a synthesized initials token for multi-word names,
// repeated once per word so that its term frequency carries comparable mass:
// "zhe sun" becomes "zhe sun zs zs". Only applied on the ground-truth side.
func extractInitials(name string) string {
	words := strings.Fields(name)
	if len(words) < 2 {
		return name
	}

	var b strings.Builder
	for _, w := range words {
		b.WriteRune([]rune(w)[0])
	}
	initials := b.String()

	parts := make([]string, 0, len(words)+1)
	parts = append(parts, name)
	for range words {
		parts = append(parts, initials)
	}
	return strings.Join(parts, " ")
}

// stripPunctuation replaces every punctuation character with a space.
func stripPunctuation(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return ' '
		}
		return r
	}, name)
}

// padPunctuation inserts spaces around every punctuation character, so
// "H&M" becomes "H & M".
func padPunctuation(name string) string {
	var b strings.Builder
	b.Grow(len(name) * 2)
	for _, r := range name {
		if strings.ContainsRune(punctuation, r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldAccents replaces accented characters by their ASCII base form and drops
// anything that does not decompose to ASCII.
func foldAccents(name string) string {
	decomposed := norm.NFKD.String(name)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseWhitespace trims and squeezes runs of whitespace to single spaces.
func collapseWhitespace(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// mapShorthands maps common Dutch shorthands onto one canonical form.
func mapShorthands(name string) string {
	for _, s := range shorthands {
		name = s.re.ReplaceAllString(name, s.repl)
	}
	return name
}

// Preprocessor applies the configured normalization steps in a fixed order.
// The same configuration must be applied to both the ground-truth and the
// query side for similarity scores to be meaningful.
type Preprocessor struct {
	opt models.PreprocessingOption
}

func NewPreprocessor(opt models.PreprocessingOption) *Preprocessor {
	return &Preprocessor{opt: opt}
}

// steps assembles the ordered step list for one side of the comparison.
// groundTruth additionally enables the synthesized initials token.
func (p *Preprocessor) steps(groundTruth bool) []func(string) string {
	var steps []func(string) string

	if !p.opt.CaseSensitive {
		steps = append(steps, strings.ToLower)
	}
	if p.opt.LegalFormProcessing {
		steps = append(steps, legalAbbreviationsToWords)
	}
	if p.opt.InitialAbbrProcessing {
		steps = append(steps, abbreviationsToWords)
		if groundTruth {
			steps = append(steps, extractInitials)
		}
	}
	if p.opt.PunctuationRemoval {
		steps = append(steps, stripPunctuation)
	} else {
		steps = append(steps, padPunctuation)
	}
	if p.opt.AccentNormalize {
		steps = append(steps, foldAccents)
	}
	steps = append(steps, strings.TrimSpace, collapseWhitespace)
	if p.opt.ShorthandProcessing {
		steps = append(steps, mapShorthands)
	}
	return steps
}

// Apply runs all configured steps over every name.
func (p *Preprocessor) Apply(names []string, groundTruth bool) []string {
	steps := p.steps(groundTruth)
	out := make([]string, len(names))
	for i, name := range names {
		for _, step := range steps {
			name = step(name)
		}
		out[i] = name
	}
	return out
}
