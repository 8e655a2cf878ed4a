// Package validate normalizes and checks user-supplied text: item tags,
// interaction notes and identifiers.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmpty             = errors.New("string is empty")
	ErrTooShort          = errors.New("string is too short")
	ErrTooLong           = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
)

// Limits.
const (
	MaxTagLength  = 40
	MaxNoteLength = 1000
	MaxIDLength   = 128
)

var (
	tagPattern = regexp.MustCompile(`^[\p{L}\p{N} _&'\-\.]+$`)
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9_:\-\.]+$`)
)

// Constraints describes what a string must satisfy.
type Constraints struct {
	MinLength  int            // in runes; 0 means no minimum
	MaxLength  int            // in runes; 0 means no maximum
	Pattern    *regexp.Regexp // optional allow-list
	AllowEmpty bool
	TrimSpace  bool
}

// Check validates s and returns it, trimmed when requested.
func Check(s string, c Constraints) (string, error) {
	if c.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if c.AllowEmpty {
			return "", nil
		}
		return "", ErrEmpty
	}

	n := utf8.RuneCountInString(s)
	if c.MinLength > 0 && n < c.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrTooShort, n, c.MinLength)
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrTooLong, n, c.MaxLength)
	}
	if c.Pattern != nil && !c.Pattern.MatchString(s) {
		return "", ErrInvalidCharacters
	}
	return s, nil
}

// Tag returns the canonical (trimmed, lower-cased, single-spaced) form of a
// tag, or an error if it is empty, too long or carries markup.
func Tag(tag string) (string, error) {
	tag = strings.Join(strings.Fields(strings.ToLower(tag)), " ")
	return Check(tag, Constraints{MinLength: 1, MaxLength: MaxTagLength, Pattern: tagPattern})
}

// Tags canonicalizes a tag list, dropping duplicates (case-insensitively)
// while keeping first-seen order. The first invalid tag aborts.
func Tags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		t, err := Tag(raw)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", raw, err)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// Note validates an optional free-text note attached to a rating and escapes
// HTML so it can be echoed back safely.
func Note(note string) (string, error) {
	s, err := Check(note, Constraints{MaxLength: MaxNoteLength, AllowEmpty: true, TrimSpace: true})
	if err != nil {
		return "", err
	}
	return html.EscapeString(s), nil
}

// ID validates an opaque identifier such as a user, city or item ID.
func ID(id string) (string, error) {
	return Check(id, Constraints{MinLength: 1, MaxLength: MaxIDLength, Pattern: idPattern, TrimSpace: true})
}
