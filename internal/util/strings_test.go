package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than limit", "invalid_grant", 64, "invalid_grant"},
		{"exactly at limit", "expired", 7, "expired"},
		{"cut at limit", "refresh token has been revoked", 13, "refresh token"},
		{"empty", "", 5, ""},
		{"zero limit", "denied", 0, ""},
		{"negative limit", "denied", -3, ""},
		{"cut before multibyte rune", "Zugriff verweigert für Benutzer", 21, "Zugriff verweigert f"},
		{"cut after multibyte rune", "Zugriff verweigert für Benutzer", 22, "Zugriff verweigert fü"},
		{"only multibyte", "世界", 4, "世"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeTruncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("SafeTruncate(%q, %d) returned invalid UTF-8 %q", tt.input, tt.maxLen, got)
			}
		})
	}
}

func TestSafeTruncate_LongDescription(t *testing.T) {
	desc := strings.Repeat("é", 600)
	got := SafeTruncate(desc, 512)
	if len(got) > 512 {
		t.Errorf("len = %d, want <= 512", len(got))
	}
	if got != strings.Repeat("é", 256) {
		t.Errorf("SafeTruncate kept %d runes, want 256", utf8.RuneCountInString(got))
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://dex.example.com", "https://dex.example.com"},
		{"https://dex.example.com/", "https://dex.example.com"},
		{"https://dex.example.com///", "https://dex.example.com"},
		{"https://login.example.com/tenant/v2.0/", "https://login.example.com/tenant/v2.0"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.input); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
