package keyword

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Helper to check a single token against a list of tokens
func TokenInSet(tok string, set []string) bool {
	return slices.Contains(set, tok)
}

// Case-folds text and strips combining marks, so "GDAŃSK" and "gdansk" compare equal.
func Normalize(text string) string {
	// transformers carry state; build a fresh chain per call
	normFunc := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(normFunc, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		out = text
	}
	return cases.Fold().String(out)
}

type MatchMode int

const (
	// term appears anywhere in the text, case-insensitively (eg "test1" matches "atest1b")
	MatchSubstring MatchMode = iota
	// term must line up with whole tokens of the text; multi-word terms match consecutive tokens
	MatchTokens
	// like MatchSubstring, but punctuation and whitespace are removed from both sides first (catches "t.e.s.t.1")
	MatchSquashed
)

func (m MatchMode) String() string {
	switch m {
	case MatchTokens:
		return "tokens"
	case MatchSquashed:
		return "squashed"
	default:
		return "substring"
	}
}

// Parses the names accepted on the command line: "substring", "tokens" or "squashed". Empty means substring.
func ParseMatchMode(name string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "substring":
		return MatchSubstring, nil
	case "tokens":
		return MatchTokens, nil
	case "squashed":
		return MatchSquashed, nil
	}
	return MatchSubstring, fmt.Errorf("unknown keyword match mode: %q", name)
}

// Matches free-form text against a list of blacklisted terms.
type Matcher struct {
	Mode  MatchMode
	terms []string
}

// Empty or whitespace-only terms are dropped.
func NewMatcher(terms []string, mode MatchMode) *Matcher {
	m := &Matcher{Mode: mode}
	for _, t := range terms {
		if strings.TrimSpace(t) == "" {
			continue
		}
		m.terms = append(m.terms, t)
	}
	return m
}

func (m *Matcher) Terms() []string {
	return m.terms
}

// Returns the first term (as configured, not normalized) found in text.
func (m *Matcher) Match(text string) (string, bool) {
	if text == "" || len(m.terms) == 0 {
		return "", false
	}
	switch m.Mode {
	case MatchTokens:
		toks := TokenizeText(text)
		for _, term := range m.terms {
			if containsTokens(toks, TokenizeText(term)) {
				return term, true
			}
		}
	case MatchSquashed:
		slug := Slugify(Normalize(text))
		for _, term := range m.terms {
			ts := Slugify(Normalize(term))
			if ts != "" && strings.Contains(slug, ts) {
				return term, true
			}
		}
	default:
		folded := Normalize(text)
		for _, term := range m.terms {
			if strings.Contains(folded, Normalize(term)) {
				return term, true
			}
		}
	}
	return "", false
}

func containsTokens(toks, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(toks) {
		return false
	}
	if len(seq) == 1 {
		return TokenInSet(seq[0], toks)
	}
	for i := 0; i+len(seq) <= len(toks); i++ {
		if slices.Equal(toks[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}
