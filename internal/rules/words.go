package rules

import (
	"unicode"
	"unicode/utf8"
)

// #region word-spans
// wordSpan is the byte range of one whitespace-delimited word.
type wordSpan struct {
	start, end int
}

// splitWords locates words without touching the separators between them, so
// rules can splice text in while leaving every other byte as it was.
func splitWords(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, wordSpan{start: start, end: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		spans = append(spans, wordSpan{start: start, end: len(text)})
	}
	return spans
}

func isSpaceRune(r rune) bool {
	return unicode.IsSpace(r)
}

// #endregion word-spans
