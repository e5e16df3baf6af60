// Package security provides input validation for free-text queries and
// sanitization of values that end up in logs and metrics.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Query text limits, counted in runes after trimming.
const (
	MinQueryLength = 3
	MaxQueryLength = 1000

	// Texts longer than this must use at least MinDistinctRunes distinct runes.
	RepetitionCheckLength = 10
	MinDistinctRunes      = 3
)

// ValidationError represents a rejected query text.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// injectionPatterns match script, markup and URI-scheme fragments.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*/\s*script`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg|img|link|meta|style)\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
}

// ValidateQueryText checks a raw free-text query. It returns nil when the
// text may be classified.
func ValidateQueryText(text string) error {
	if !utf8.ValidString(text) {
		return &ValidationError{Field: "query", Constraint: "must be valid UTF-8 text"}
	}

	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)

	if length < MinQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      length,
			Constraint: fmt.Sprintf("minimum length is %d characters", MinQueryLength),
		}
	}

	if length > MaxQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}

	if !hasAlphanumeric(trimmed) {
		return &ValidationError{Field: "query", Constraint: "must contain letters or digits"}
	}

	for _, p := range injectionPatterns {
		if p.MatchString(trimmed) {
			return &ValidationError{Field: "query", Constraint: "contains disallowed markup or script"}
		}
	}

	if length > RepetitionCheckLength && distinctRunes(trimmed) < MinDistinctRunes {
		return &ValidationError{
			Field:      "query",
			Constraint: fmt.Sprintf("must use at least %d distinct characters", MinDistinctRunes),
		}
	}

	return nil
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func distinctRunes(s string) int {
	seen := make(map[rune]struct{})
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}
