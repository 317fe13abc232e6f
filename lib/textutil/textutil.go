package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeSpace trims the string and collapses inner runs of whitespace into a single space.
func NormalizeSpace(text string) string {
	text = strings.TrimSpace(text)
	return whitespaceRegex.ReplaceAllString(text, " ")
}

// CleanAmount strips thousands separators and the trailing won unit from
// an amount, "12,340원" becomes "12340".
func CleanAmount(amount string) string {
	amount = strings.TrimSpace(amount)
	amount = strings.ReplaceAll(amount, ",", "")
	amount = strings.TrimSuffix(amount, "원")
	return strings.TrimSpace(amount)
}

// Parenthesized returns the trimmed contents of the first pair of
// parentheses in text, "사용량 (123kWh)" becomes "123kWh". The second return
// value is false when there is no complete pair.
func Parenthesized(text string) (string, bool) {
	start := strings.Index(text, "(")
	if start < 0 {
		return "", false
	}
	end := strings.Index(text[start+1:], ")")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(text[start+1 : start+1+end]), true
}
