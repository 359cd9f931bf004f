package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	stripper  = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SanitizeText removes all markup, for single line fields such as reward names.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(stripper.Sanitize(input)))
}
