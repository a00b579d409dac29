package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than maxLen", input: "short", maxLen: 10, want: "short"},
		{name: "equal to maxLen", input: "exactly10c", maxLen: 10, want: "exactly10c"},
		{name: "longer than maxLen", input: "upstream said no", maxLen: 8, want: "upstream"},
		{name: "empty", input: "", maxLen: 5, want: ""},
		{name: "zero", input: "test", maxLen: 0, want: ""},
		{name: "negative", input: "test", maxLen: -1, want: ""},
		{name: "does not split runes", input: "hello世界", maxLen: 7, want: "hello"},
		{name: "whole rune fits", input: "hello世界", maxLen: 8, want: "hello世"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		maxLen int
		want   string
	}{
		{name: "short", body: `{"error":"nope"}`, maxLen: 64, want: `{"error":"nope"}`},
		{name: "collapses whitespace", body: "<html>\n  <body>bad\tgateway</body>\n</html>", maxLen: 64, want: "<html> <body>bad gateway</body> </html>"},
		{name: "truncated", body: "aaaaaaaaaaaa", maxLen: 4, want: "aaaa..."},
		{name: "empty", body: "", maxLen: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Snippet([]byte(tt.body), tt.maxLen); got != tt.want {
				t.Errorf("Snippet() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		secret string
		keep   int
		want   string
	}{
		{secret: "", keep: 4, want: ""},
		{secret: "abc", keep: 4, want: "****"},
		{secret: "s3cr3t-value", keep: 4, want: "s3cr****"},
	}

	for _, tt := range tests {
		if got := Redact(tt.secret, tt.keep); got != tt.want {
			t.Errorf("Redact(%q, %d) = %q, want %q", tt.secret, tt.keep, got, tt.want)
		}
	}
}
