package utils

import (
	"strings"
	"unicode/utf8"
)

// RemoveControlCharacters 移除控制字符，保留换行符和制表符
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}

// TruncateRunes cuts text to at most max runes.
func TruncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

// SanitizePrompt normalises user supplied prompt text: control characters are
// dropped, surrounding whitespace trimmed and the length capped.
func SanitizePrompt(text string, max int) string {
	cleaned := strings.TrimSpace(RemoveControlCharacters(text))
	return TruncateRunes(cleaned, max)
}
