// Package normalizers provides field normalization for duplicate scoring
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("ndomain", NormalizeDomain)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("nphone", NormalizePhone)
	Register("ncity", NormalizeCity)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeDomain reduces a domain or URL to its bare host for comparison:
// scheme, "www." prefix, path, port and case are all stripped.
// "https://www.Acme.com/about" and "acme.com" normalize identically.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, scheme := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, scheme)
	}
	s = strings.TrimPrefix(s, "www.")

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}

	return s
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes a person or company name for fuzzy comparison:
// lowercase, punctuation removed, whitespace collapsed, common person
// suffixes (Jr., Sr., III, ...) dropped.
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeCity lowercases and collapses a city name, expanding the common
// "st."/"ft." abbreviations so "St. Louis" matches "Saint Louis".
func NormalizeCity(s string) string {
	s = NormalizeName(s)

	if rest, ok := strings.CutPrefix(s, "st "); ok {
		s = "saint " + rest
	} else if rest, ok := strings.CutPrefix(s, "ft "); ok {
		s = "fort " + rest
	}

	return s
}
