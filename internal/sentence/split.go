// Package sentence splits free text into sentences with the Punkt model for
// English, which handles abbreviations and decimal numbers that a naive
// punctuation split would break on.
package sentence

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	loadTokenizer = sync.OnceValues(func() (*sentences.DefaultSentenceTokenizer, error) {
		return english.NewSentenceTokenizer(nil)
	})
	mu sync.Mutex
)

// Split returns the trimmed, non-empty sentences of text in order. Text the
// tokenizer cannot handle is returned as a single sentence.
func Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokenizer, err := loadTokenizer()
	if err != nil {
		return []string{collapse(text)}
	}

	mu.Lock()
	tokens := tokenizer.Tokenize(text)
	mu.Unlock()

	out := make([]string, 0, len(tokens))
	for _, s := range tokens {
		if t := collapse(s.Text); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{collapse(text)}
	}
	return out
}

// collapse joins runs of whitespace, including newlines, into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
