// Package budget estimates token counts and trims text to fit a model's
// input limit. The embedding backends use different tokenizers, so this
// package uses a character heuristic: a CJK character is about one token
// and other text is about four characters per token. Both ratios round
// in the direction of over-counting.
package budget

import (
	"unicode"
	"unicode/utf8"
)

const (
	// charsPerToken is the character-to-token ratio for non-CJK text.
	charsPerToken = 4

	// DefaultMaxInputTokens is the default per-text embedding budget. It
	// sits under the 8k input window of bge-m3 and text-embedding-3.
	DefaultMaxInputTokens = 8000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	var cjk, other int
	for _, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+charsPerToken-1)/charsPerToken
}

// Truncate returns the longest prefix of s whose estimate fits within
// maxTokens. The cut always falls on a rune boundary. A non-positive
// maxTokens disables truncation.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 || Estimate(s) <= maxTokens {
		return s
	}

	var cjk, other int
	for i, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
		if cjk+(other+charsPerToken-1)/charsPerToken > maxTokens {
			return s[:i]
		}
	}
	return s
}

// TruncateAll applies Truncate to every element and reports how many
// texts were shortened. The input slice is not modified.
func TruncateAll(texts []string, maxTokens int) ([]string, int) {
	out := make([]string, len(texts))
	cut := 0
	for i, t := range texts {
		out[i] = Truncate(t, maxTokens)
		if len(out[i]) != len(t) {
			cut++
		}
	}
	return out, cut
}

// isCJK reports whether r is a Han, Hiragana, Katakana or Hangul
// character, or full-width CJK punctuation.
func isCJK(r rune) bool {
	if r < utf8.RuneSelf {
		return false
	}
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}
