package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const maxWebsiteFiltersLength = 1000

var (
	// DomainRegex validates domain format
	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	ErrInvalidFilters = errors.New("invalid website filters")
)

// IsValidDomain checks if the string is a valid domain format
func IsValidDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

// IsValidDate accepts calendar dates in YYYY-MM-DD form.
func IsValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// ParseID parses a positive numeric path parameter.
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ValidateWebsiteFilters checks a search-style filter string such as
// "site:reuters.com OR site:sec.gov/edgar". Every site: token must name a
// domain, optionally followed by a path. Other tokens are passed through.
func ValidateWebsiteFilters(filters string) error {
	filters = strings.TrimSpace(filters)
	if filters == "" {
		return nil
	}
	if len(filters) > maxWebsiteFiltersLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidFilters, maxWebsiteFiltersLength)
	}

	for _, token := range strings.Fields(filters) {
		site, ok := strings.CutPrefix(token, "site:")
		if !ok {
			continue
		}
		host, _, _ := strings.Cut(site, "/")
		if !IsValidDomain(host) {
			return fmt.Errorf("%w: %q is not a domain", ErrInvalidFilters, site)
		}
	}
	return nil
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates s to maxLen runes.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
