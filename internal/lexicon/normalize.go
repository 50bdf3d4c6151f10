package lexicon

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// pictographic lists the code point ranges removed before analysis: emoji,
// pictographs, dingbats, enclosed characters, joiners and variation selectors.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x231a, Hi: 0x231a, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23e9, Stride: 1},
		{Lo: 0x24c2, Hi: 0xffff, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x10000, Hi: 0x10ffff, Stride: 1},
	},
}

// StripPictographs removes emoji and other pictographic code points.
func StripPictographs(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(pictographic, r) {
			return -1
		}
		return r
	}, text)
}

// fold lowercases text with full Unicode case mapping.
func fold(text string) string {
	return cases.Lower(language.Und).String(text)
}

// isWordRune reports whether r continues a word.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wholeWord reports whether text[start:end] is not embedded in a longer word.
func wholeWord(text []rune, start, end int) bool {
	if start > 0 && isWordRune(text[start-1]) {
		return false
	}
	if end < len(text) && isWordRune(text[end]) {
		return false
	}
	return true
}
