package util

import (
	"strings"
	"unicode/utf8"
)

// SafeTruncate returns at most maxLen bytes of s without splitting a UTF-8
// sequence. A negative maxLen is treated as zero.
//
//	SafeTruncate("upstream said no", 8) // "upstream"
//	SafeTruncate("hello世界", 7)         // "hello"
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

// Snippet collapses whitespace in an upstream response body and truncates it
// for inclusion in an error or log line.
func Snippet(body []byte, maxLen int) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) <= maxLen {
		return s
	}
	return SafeTruncate(s, maxLen) + "..."
}

// Redact keeps the first keep bytes of a secret and masks the rest. Secrets
// no longer than keep are fully masked.
func Redact(secret string, keep int) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= keep {
		return "****"
	}
	return SafeTruncate(secret, keep) + "****"
}
