// Package address canonicalizes free-text UK address strings so that the
// Land Registry and EPC spellings of the same property can be compared.
package address

import (
	"regexp"
	"strings"
)

var (
	separatorPattern   = regexp.MustCompile(`[-/]`)
	punctuationPattern = regexp.MustCompile(`[^\w\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	numberPattern      = regexp.MustCompile(`\d+`)
)

// Normalizer strips a configured vocabulary of noise words from addresses.
// The vocabulary is injected at construction so different deployments can
// tune it (e.g. adding "cottage") without process-wide state.
type Normalizer struct {
	noisePattern *regexp.Regexp
}

func NewNormalizer(noiseWords []string) *Normalizer {
	n := &Normalizer{}
	if len(noiseWords) == 0 {
		return n
	}
	parts := make([]string, 0, len(noiseWords))
	for _, word := range noiseWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		parts = append(parts, `\b`+regexp.QuoteMeta(word)+`\b`)
	}
	if len(parts) > 0 {
		n.noisePattern = regexp.MustCompile(`(?i)` + strings.Join(parts, "|"))
	}
	return n
}

// Normalize returns the canonical lowercase token form of a raw address:
// hyphens and slashes become spaces, noise words are dropped as whole tokens,
// remaining punctuation is stripped and whitespace collapsed. Deterministic
// and idempotent.
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := separatorPattern.ReplaceAllString(raw, " ")
	if n.noisePattern != nil {
		s = n.noisePattern.ReplaceAllString(s, "")
	}
	s = punctuationPattern.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits a normalized address into its token set.
func Tokens(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// ExtractNumbers returns every maximal digit run in order of appearance,
// without deduplication. House number "12" in "12a" is extracted as "12";
// "7" never matches inside "17".
func ExtractNumbers(s string) []string {
	return numberPattern.FindAllString(s, -1)
}

// NormalizePostcode strips internal whitespace and uppercases, so
// "SW1A 1AA" and "sw1a1aa" compare equal.
func NormalizePostcode(postcode string) string {
	return strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
}
