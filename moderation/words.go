package moderation

import (
	_ "embed"
	"strings"
)

//go:embed censored/words.txt
var embeddedWords string

// DefaultWords returns the built-in censored word list, one word per line.
func DefaultWords() []string {
	var words []string
	for _, line := range strings.Split(embeddedWords, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	return words
}
