package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/warp/personnel-engine/generic"
)

// =============================================================================
// DISPLAY LABEL CODEC - Pure, no I/O
// =============================================================================

// Tag is the category marker prepended to a display label.
type Tag string

const (
	TagNone   Tag = ""
	TagIntern Tag = "INT"

	// tagLegacyEmployee was produced by earlier releases. Decode still
	// accepts it; Encode never emits it.
	tagLegacyEmployee Tag = "EMP"
)

var labelPattern = regexp.MustCompile(`^(?:(?:INT|EMP)-)?[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{2}$`)

// Encode renders the last 10 characters of id as XXXX-XXXX-XX, prefixed
// with the tag when one is given:
//
//	01JH8Q2V7CK3M4N5T6V4B1C9D0 + TagIntern -> INT-T6V4-B1C9-D0
//	01JH8Q2V7CK3M4N5T6V4B1C9D0 + TagNone   -> T6V4-B1C9-D0
func Encode(id ID, tag Tag) string {
	s := strings.ToUpper(id.Suffix())
	if len(s) < SuffixLength {
		s += strings.Repeat("0", SuffixLength-len(s))
	}
	formatted := s[:4] + "-" + s[4:8] + "-" + s[8:10]
	if tag == TagNone {
		return formatted
	}
	return string(tag) + "-" + formatted
}

// Decode extracts the 10-character identifier suffix from a display label.
func Decode(label string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(label))
	for _, tag := range []Tag{TagIntern, tagLegacyEmployee} {
		if prefix := string(tag) + "-"; strings.HasPrefix(cleaned, prefix) {
			cleaned = cleaned[len(prefix):]
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, "-", "")

	if len(cleaned) != SuffixLength || !inAlphabet(cleaned) {
		return "", fmt.Errorf("%w: %q", generic.ErrMalformedLabel, label)
	}
	return cleaned, nil
}

// LooksLikeLabel reports whether token has the display label shape
// (TAG-)?####-####-##.
func LooksLikeLabel(token string) bool {
	return labelPattern.MatchString(strings.ToUpper(strings.TrimSpace(token)))
}
