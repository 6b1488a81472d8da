package session

import (
	"fmt"
	"regexp"
	"strings"
)

// Phrase is one practice unit extracted from a source text
type Phrase struct {
	Index int    `json:"index"` // Zero-based position within the text
	Text  string `json:"text"`
	Words int    `json:"words"`
}

var phraseCleaner = regexp.MustCompile(`[^\w\s'-]`)

// ExtractPhrases splits a source text into practice phrases of roughly
// wordCount words each. Punctuation other than intra-word apostrophes
// and hyphens is dropped before splitting.
func ExtractPhrases(text string, wordCount int) []Phrase {
	if wordCount <= 0 {
		wordCount = 8
	}

	cleaned := phraseCleaner.ReplaceAllString(text, " ")
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return nil
	}

	var phrases []Phrase
	for start := 0; start < len(words); start += wordCount {
		end := start + wordCount
		if end > len(words) {
			end = len(words)
		}
		group := words[start:end]
		phrases = append(phrases, Phrase{
			Index: len(phrases),
			Text:  strings.Join(group, " "),
			Words: len(group),
		})
	}
	return phrases
}

// attemptKey identifies one practice line for attempt counting. The
// position alone is not enough because the same line can reappear when
// a session is rebuilt from an edited text.
func attemptKey(position int, text string) string {
	runes := []rune(text)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return fmt.Sprintf("%d_%s", position, string(runes))
}
