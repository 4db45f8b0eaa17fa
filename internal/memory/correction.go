package memory

import (
	"strings"
	"unicode"
)

// DefaultNegationToken opens a correction of a previously stated fact.
const DefaultNegationToken = "no"

// IsCorrection reports whether the trimmed, lowercased utterance starts with
// the negation token. The check is a plain prefix test, so "Nosotros..."
// also qualifies.
func IsCorrection(utterance, token string) bool {
	if token == "" {
		token = DefaultNegationToken
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(utterance)), strings.ToLower(token))
}

// correctionRemainder returns what follows the leading negation token,
// without the separating punctuation ("No, me llamo Sofía" yields
// "me llamo Sofía").
func correctionRemainder(utterance, token string) string {
	if token == "" {
		token = DefaultNegationToken
	}
	if !IsCorrection(utterance, token) {
		return ""
	}
	rest := strings.TrimSpace(utterance)[len(token):]
	return strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// Normalize trims text and upper-cases its first letter.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
