// Package moderation masks forbidden words in chat lines before they are
// logged, archived, or relayed.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	maskingChar rune
	log         *slog.Logger
}

// textMapping links the normalized searchable runes back to their
// positions in the original line, so masking preserves spacing and noise.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list. Empty or all-noise entries are dropped before the build.
func NewModerator(words []string, maskingChar rune, log *slog.Logger) (Moderator, error) {
	var patterns [][]rune
	for _, word := range words {
		p := normalizeRunes([]rune(word))
		if len(p) == 0 {
			log.Debug("Dropping empty moderation pattern", "word", word)
			continue
		}
		patterns = append(patterns, p)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, maskingChar: maskingChar, log: log}, nil
}

// Censor masks every forbidden pattern in the line and returns the masked
// line along with the normalized words that were found. The input is
// returned unchanged when nothing matches.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := m.normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string

	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskingChar
		}
	}

	return string(origRunes), found
}

// normalize lowercases, resolves leet speak, and strips noise while
// remembering where every kept rune came from.
func (m *Moderator) normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet speak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
