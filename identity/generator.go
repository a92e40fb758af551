/*
Package identity generates personnel identifiers and converts them to and from
their short human-facing display labels.

IDENTIFIER FORMAT:
  26 characters, uppercase Crockford base32 (no I, L, O, U), time-ordered:

    01JH8Q2V7C K3M4N5T6V4B1C9D0
    |--------| |--------------|
    timestamp  randomness (last 10 chars = display suffix)

  Identifiers are assigned once at creation and never regenerated, reused or
  altered. The category (intern/employee) is NOT part of the identifier; it
  only shows up as the tag of the display label.

UNIQUENESS:
  The generator checks each candidate against persisted identifiers (and live
  display suffixes) and retries on collision, at most MaxAttempts times. The
  storage uniqueness constraint remains the final authority: a collision that
  slips in between check and commit surfaces as generic.ErrDuplicateIdentifier.

SEE ALSO:
  - label.go: display label codec
  - token.go: resolver dispatch by token shape
*/
package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/warp/personnel-engine/generic"
)

// ID is an immutable 26-character personnel identifier.
type ID string

const (
	// Length is the fixed identifier length.
	Length = 26

	// SuffixLength is how many trailing characters the display label shows.
	SuffixLength = 10

	// Alphabet is the Crockford base32 symbol set identifiers are drawn from.
	Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

	// DefaultMaxAttempts bounds the collision retry loop.
	DefaultMaxAttempts = 100
)

func (id ID) String() string { return string(id) }

// Suffix returns the trailing characters shown in the display label.
func (id ID) Suffix() string {
	s := string(id)
	if len(s) < SuffixLength {
		return s
	}
	return s[len(s)-SuffixLength:]
}

// Normalize trims and uppercases a caller-supplied identifier.
func Normalize(token string) ID {
	return ID(strings.ToUpper(strings.TrimSpace(token)))
}

// IsWellFormed reports whether token is exactly 26 characters drawn from the
// identifier alphabet, after case normalization.
func IsWellFormed(token string) bool {
	if len(token) != Length {
		return false
	}
	return inAlphabet(strings.ToUpper(token))
}

func inAlphabet(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune(Alphabet, c) {
			return false
		}
	}
	return true
}

// =============================================================================
// GENERATOR
// =============================================================================

// Checker answers whether a candidate identifier is already in use.
type Checker interface {
	IdentifierTaken(ctx context.Context, id ID) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, id ID) (bool, error)

func (f CheckerFunc) IdentifierTaken(ctx context.Context, id ID) (bool, error) {
	return f(ctx, id)
}

// Generator draws monotonic, lexicographically sortable identifiers.
// Safe for concurrent use.
type Generator struct {
	MaxAttempts int

	clock   generic.Clock
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator creates a generator stamping identifiers with clock time.
func NewGenerator(clock generic.Clock) *Generator {
	return &Generator{
		MaxAttempts: DefaultMaxAttempts,
		clock:       clock,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate returns an identifier that check reports as free.
func (g *Generator) Generate(ctx context.Context, check Checker) (ID, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		id, err := g.next()
		if err != nil {
			return "", fmt.Errorf("draw identifier: %w", err)
		}
		taken, err := check.IdentifierTaken(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free identifier after %d attempts", generic.ErrExhaustedAttempts, attempts)
}

func (g *Generator) next() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(g.clock.Now()), g.entropy)
	if err != nil {
		return "", err
	}
	return ID(u.String()), nil
}
