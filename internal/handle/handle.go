// Package handle normalizes and validates user-supplied Instagram handles.
package handle

import (
	"fmt"
	"regexp"
	"strings"

	"instalytics/internal/core/domain"
)

// Length bounds of a handle, excluding the optional leading @.
const (
	MinLength = 3
	MaxLength = 30
)

// handlePattern: word char, 1–28 word chars or periods, word char.
var handlePattern = regexp.MustCompile(`^\w[\w.]{1,28}\w$`)

// Sanitize strips one leading @, trims whitespace and lowercases.
func Sanitize(input string) string {
	username := strings.TrimPrefix(input, "@")
	username = strings.TrimSpace(username)
	return strings.ToLower(username)
}

// Validate checks the handle grammar and returns the sanitized handle.
func Validate(input string) (string, error) {
	candidate := strings.TrimPrefix(strings.TrimSpace(input), "@")

	if !handlePattern.MatchString(candidate) || strings.Contains(candidate, "..") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidFormat, input)
	}

	return Sanitize(candidate), nil
}
