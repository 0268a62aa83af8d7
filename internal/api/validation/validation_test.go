package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		valid  bool
	}{
		{"valid_simple", "example.com", true},
		{"valid_subdomain", "mail.example.com", true},
		{"valid_multiple_subs", "a.b.c.example.com", true},
		{"valid_dash", "my-domain.com", true},
		{"valid_numbers", "example123.com", true},
		{"invalid_no_tld", "example", false},
		{"invalid_dash_start", "-example.com", false},
		{"invalid_dash_end", "example-.com", false},
		{"invalid_underscore", "exam_ple.com", false},
		{"invalid_spaces", "exam ple.com", false},
		{"too_long", string(make([]byte, 255)) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidDomain(tt.domain)
			assert.Equal(t, tt.valid, result, "Domain: %s", tt.domain)
		})
	}
}

func TestIsValidDate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2024-01-31", true},
		{"2024-02-30", false},
		{"2024/01/31", false},
		{"31-01-2024", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidDate(tt.input))
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input  string
		wantID uint
		wantOK bool
	}{
		{"1", 1, true},
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, ok := ParseID(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestValidateWebsiteFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters string
		wantErr bool
	}{
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"single_site", "site:reuters.com", false},
		{"or_chain", "site:reuters.com OR site:ft.com", false},
		{"with_path", "site:sec.gov/cgi-bin/browse-edgar", false},
		{"free_text_ignored", "earnings site:bloomberg.com", false},
		{"bad_domain", "site:not_a_domain", true},
		{"empty_site", "site:", true},
		{"too_long", "site:a.com " + string(make([]byte, 1000)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebsiteFilters(tt.filters)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilters)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean_text", "Hello World", "Hello World"},
		{"null_bytes", "Hello\x00World", "HelloWorld"},
		{"control_chars", "Hello\x01\x02World", "HelloWorld"},
		{"keep_newlines", "Hello\nWorld", "Hello\nWorld"},
		{"keep_tabs", "Hello\tWorld", "Hello\tWorld"},
		{"keep_carriage_return", "Hello\rWorld", "Hello\rWorld"},
		{"mixed", "Hello\x00\x01\nWorld\t!", "Hello\nWorld\t!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter_than_max", "Hello", 10, "Hello"},
		{"equal_to_max", "Hello", 5, "Hello"},
		{"longer_than_max", "Hello World", 5, "Hello"},
		{"multibyte", "Zürich Börse", 6, "Zürich"},
		{"empty", "", 10, ""},
		{"zero_max", "Hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen)
			assert.Equal(t, tt.expected, result)
		})
	}
}
