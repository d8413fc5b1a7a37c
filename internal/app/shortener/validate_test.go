package shortener

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "https://example.com/a", "https://example.com/a"},
		{"empty path gets slash", "https://example.com", "https://example.com/"},
		{"host lowercased", "https://EXAMPLE.COM/A", "https://example.com/A"},
		{"scheme lowercased", "HTTPS://example.com/", "https://example.com/"},
		{"query kept", "https://example.com/search?q=go+lang", "https://example.com/search?q=go+lang"},
		{"surrounding space trimmed", "  https://example.com/a  ", "https://example.com/a"},
		{"http ok", "http://example.com/", "http://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeURL(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"not a url",
		"example.com/no-scheme",
		"ftp://example.com/file",
		"https://",
		"/relative/path",
		"https:///missing-host",
	} {
		if _, err := NormalizeURL(in); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("NormalizeURL(%q): got %v, want ErrInvalidURL", in, err)
		}
	}
}

func TestNormalizeURLIsStable(t *testing.T) {
	// 规范化必须是幂等的：规范形式再过一遍还是它自己。
	normalized, err := NormalizeURL("https://Example.com")
	if err != nil {
		t.Fatalf("NormalizeURL: %v", err)
	}
	again, err := NormalizeURL(normalized)
	if err != nil {
		t.Fatalf("NormalizeURL (second pass): %v", err)
	}
	if again != normalized {
		t.Fatalf("not idempotent: %q -> %q", normalized, again)
	}
}

func TestValidateAlias(t *testing.T) {
	valid := []string{
		"abc",
		"my-link",
		"my_link",
		"ABC123",
		strings.Repeat("a", 32),
	}
	for _, alias := range valid {
		if err := ValidateAlias(alias); err != nil {
			t.Fatalf("ValidateAlias(%q): got %v, want nil", alias, err)
		}
	}

	invalid := []string{
		"ab",                      // 长度 2
		strings.Repeat("a", 33),   // 长度 33
		"has@sign",                // 非法字符
		"has space",
		"日本語",
		"",
	}
	for _, alias := range invalid {
		if err := ValidateAlias(alias); !errors.Is(err, ErrInvalidAlias) {
			t.Fatalf("ValidateAlias(%q): got %v, want ErrInvalidAlias", alias, err)
		}
	}
}
