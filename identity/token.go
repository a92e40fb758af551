package identity

import (
	"fmt"
	"strings"

	"github.com/warp/personnel-engine/generic"
)

// LookupKind says how a resolved token must be matched against storage.
type LookupKind int

const (
	// ByIdentifier is an exact, case-normalized identifier match.
	ByIdentifier LookupKind = iota
	// BySuffix matches the unique live identifier ending with Suffix.
	BySuffix
)

// Lookup is the storage query a caller token resolves to.
type Lookup struct {
	Kind       LookupKind
	Identifier ID
	Suffix     string
}

// ParseToken dispatches a caller token by shape:
//
//	26 characters      -> exact identifier
//	label pattern      -> decoded suffix
//	anything else      -> exact identifier (fallback)
//
// A token that looks like a label but does not decode is reported as
// generic.ErrNotFound.
func ParseToken(token string) (Lookup, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return Lookup{}, generic.NotFoundf("empty identifier")
	}

	if len(t) == Length {
		return Lookup{Kind: ByIdentifier, Identifier: Normalize(t)}, nil
	}

	if LooksLikeLabel(t) {
		suffix, err := Decode(t)
		if err != nil {
			return Lookup{}, fmt.Errorf("%w: %w", generic.ErrNotFound, err)
		}
		return Lookup{Kind: BySuffix, Suffix: suffix}, nil
	}

	return Lookup{Kind: ByIdentifier, Identifier: Normalize(t)}, nil
}
