// Package moderation screens Drop text before it enters the engine.
package moderation

import (
	"strings"
	"unicode"
)

// Verdict is the outcome of a scan. Blocked text is stored FLAGGED instead
// of LIVE. CrisisFlag is advisory and never hides a Drop.
type Verdict struct {
	Blocked    bool
	CrisisFlag bool
}

type Scanner interface {
	Scan(text string) Verdict
}

// KeywordFilter matches whole words and phrases, ignoring case and
// punctuation. "ass" does not match "class".
type KeywordFilter struct {
	blocked []string
	crisis  []string
}

var _ Scanner = (*KeywordFilter)(nil)

func NewKeywordFilter(blocklist, crisisTerms []string) *KeywordFilter {
	return &KeywordFilter{
		blocked: normalizeAll(blocklist),
		crisis:  normalizeAll(crisisTerms),
	}
}

func (f *KeywordFilter) Scan(text string) Verdict {
	if f == nil {
		return Verdict{}
	}
	padded := " " + normalize(text) + " "
	return Verdict{
		Blocked:    containsAny(padded, f.blocked),
		CrisisFlag: containsAny(padded, f.crisis),
	}
}

// normalize lowercases s and collapses every run of non-alphanumerics into
// one space.
func normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := normalize(t); n != "" {
			out = append(out, " "+n+" ")
		}
	}
	return out
}

func containsAny(padded string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(padded, t) {
			return true
		}
	}
	return false
}
