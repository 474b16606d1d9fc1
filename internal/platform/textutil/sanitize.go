// Package textutil provides text sanitization for free-form user input such
// as order notes and transition reasons before it reaches storage.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from free-form input and normalises whitespace.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a sanitizer with a strict no-markup policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// CleanText removes all HTML, decodes the entities the policy escaped, and
// collapses runs of whitespace into single spaces.
func (s *Sanitizer) CleanText(input string) string {
	if input == "" {
		return ""
	}
	stripped := s.policy.Sanitize(input)
	decoded := html.UnescapeString(stripped)
	return CollapseWhitespace(decoded)
}

// CollapseWhitespace trims the string and folds interior whitespace runs,
// including newlines and tabs, into single spaces.
func CollapseWhitespace(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
