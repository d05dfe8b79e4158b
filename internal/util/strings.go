package util

import (
	"strings"
	"unicode/utf8"
)

// SafeTruncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence. Provider-supplied error descriptions pass through it before they
// are logged or recorded on spans.
//
// Example:
//
//	SafeTruncate("invalid refresh token", 7) // Returns: "invalid"
//	SafeTruncate("héllo", 2)                 // Returns: "h"
//	SafeTruncate("test", -1)                 // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NormalizeURL drops trailing slashes so issuer URLs compare equal with and
// without them.
//
// Example:
//
//	NormalizeURL("https://dex.example.com/")   // Returns: "https://dex.example.com"
//	NormalizeURL("https://dex.example.com///") // Returns: "https://dex.example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
