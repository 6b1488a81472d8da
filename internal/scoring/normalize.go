package scoring

import (
	"strings"
	"unicode"
)

// Normalize prepares text for comparison: punctuation stripped, case
// folded, whitespace collapsed to single spaces
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '\'' || r == '-':
			// Keep intra-word punctuation so contractions survive.
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Words normalizes text and splits it into comparison tokens
func Words(text string) []string {
	n := Normalize(text)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}
