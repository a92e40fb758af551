package identity_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// =============================================================================
// GENERATOR TESTS
// =============================================================================

func TestGenerate_TenThousandUnique(t *testing.T) {
	// GIVEN: A generator backed by an in-memory set of issued identifiers
	// WHEN: Generating 10,000 identifiers
	// THEN: All are distinct, 26 characters long and drawn from the alphabet

	gen := identity.NewGenerator(generic.SystemClock{})
	issued := make(map[identity.ID]bool, 10000)
	check := identity.CheckerFunc(func(_ context.Context, id identity.ID) (bool, error) {
		return issued[id], nil
	})

	for i := 0; i < 10000; i++ {
		id, err := gen.Generate(context.Background(), check)
		require.NoError(t, err)
		require.Len(t, string(id), identity.Length)
		require.True(t, identity.IsWellFormed(string(id)), "malformed identifier %s", id)
		require.False(t, issued[id], "duplicate identifier %s", id)
		issued[id] = true
	}
	assert.Len(t, issued, 10000)
}

func TestGenerate_SortableWithinSameInstant(t *testing.T) {
	// GIVEN: A clock frozen at one instant
	// WHEN: Generating several identifiers
	// THEN: They are strictly increasing in generation order

	gen := identity.NewGenerator(generic.FixedClock{At: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)})
	free := identity.CheckerFunc(func(context.Context, identity.ID) (bool, error) { return false, nil })

	var ids []string
	for i := 0; i < 50; i++ {
		id, err := gen.Generate(context.Background(), free)
		require.NoError(t, err)
		ids = append(ids, string(id))
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	// GIVEN: A checker reporting the first three candidates as taken
	// WHEN: Generating
	// THEN: The fourth candidate is returned

	gen := identity.NewGenerator(generic.SystemClock{})
	calls := 0
	check := identity.CheckerFunc(func(context.Context, identity.ID) (bool, error) {
		calls++
		return calls <= 3, nil
	})

	id, err := gen.Generate(context.Background(), check)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 4, calls)
}

func TestGenerate_ExhaustedAttempts(t *testing.T) {
	// GIVEN: A checker that reports every candidate as taken
	// WHEN: Generating with a bound of 5 attempts
	// THEN: ErrExhaustedAttempts after exactly 5 checks

	gen := identity.NewGenerator(generic.SystemClock{})
	gen.MaxAttempts = 5
	calls := 0
	check := identity.CheckerFunc(func(context.Context, identity.ID) (bool, error) {
		calls++
		return true, nil
	})

	_, err := gen.Generate(context.Background(), check)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrExhaustedAttempts)
	assert.Equal(t, 5, calls)
}

func TestGenerate_CheckerErrorStopsImmediately(t *testing.T) {
	gen := identity.NewGenerator(generic.SystemClock{})
	boom := errors.New("storage down")
	calls := 0
	check := identity.CheckerFunc(func(context.Context, identity.ID) (bool, error) {
		calls++
		return false, boom
	})

	_, err := gen.Generate(context.Background(), check)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, generic.ErrExhaustedAttempts)
	assert.Equal(t, 1, calls)
}

// =============================================================================
// LABEL CODEC TESTS
// =============================================================================

const sampleID = identity.ID("01JH8Q2V7CK3M4N5T6V4B1C9D0")

func TestEncode_Formats(t *testing.T) {
	assert.Equal(t, "INT-T6V4-B1C9-D0", identity.Encode(sampleID, identity.TagIntern))
	assert.Equal(t, "T6V4-B1C9-D0", identity.Encode(sampleID, identity.TagNone))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	// GIVEN: Freshly generated identifiers
	// WHEN: Encoding with either tag and decoding the label
	// THEN: The decoded suffix equals the identifier's last 10 characters

	gen := identity.NewGenerator(generic.SystemClock{})
	free := identity.CheckerFunc(func(context.Context, identity.ID) (bool, error) { return false, nil })

	for i := 0; i < 200; i++ {
		id, err := gen.Generate(context.Background(), free)
		require.NoError(t, err)
		for _, tag := range []identity.Tag{identity.TagIntern, identity.TagNone} {
			suffix, err := identity.Decode(identity.Encode(id, tag))
			require.NoError(t, err)
			assert.Equal(t, id.Suffix(), suffix)
		}
	}
}

func TestDecode_TaggedAndUntaggedShareSuffix(t *testing.T) {
	// GIVEN: The same identifier rendered as intern and as employee
	// WHEN: Decoding both labels
	// THEN: Both resolve to the same suffix (conversion keeps the identity)

	intern, err := identity.Decode("INT-T6V4-B1C9-D0")
	require.NoError(t, err)
	employee, err := identity.Decode("T6V4-B1C9-D0")
	require.NoError(t, err)
	legacy, err := identity.Decode("EMP-T6V4-B1C9-D0")
	require.NoError(t, err)

	assert.Equal(t, "T6V4B1C9D0", intern)
	assert.Equal(t, intern, employee)
	assert.Equal(t, intern, legacy)
}

func TestDecode_CaseInsensitive(t *testing.T) {
	suffix, err := identity.Decode("  int-t6v4-b1c9-d0 ")
	require.NoError(t, err)
	assert.Equal(t, "T6V4B1C9D0", suffix)
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		"",
		"T6V4-B1C9",
		"T6V4-B1C9-D0X",
		"INT-IIII-LLLL-OO",
		"XYZ-T6V4-B1C9-D0",
		"hello world",
	}
	for _, label := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := identity.Decode(label)
			assert.ErrorIs(t, err, generic.ErrMalformedLabel)
		})
	}
}

func TestLooksLikeLabel(t *testing.T) {
	assert.True(t, identity.LooksLikeLabel("INT-T6V4-B1C9-D0"))
	assert.True(t, identity.LooksLikeLabel("T6V4-B1C9-D0"))
	assert.True(t, identity.LooksLikeLabel("emp-t6v4-b1c9-d0"))
	assert.False(t, identity.LooksLikeLabel(string(sampleID)))
	assert.False(t, identity.LooksLikeLabel("T6V4B1C9D0"))
	assert.False(t, identity.LooksLikeLabel("ABC-T6V4-B1C9-D0"))
}

// =============================================================================
// TOKEN DISPATCH TESTS
// =============================================================================

func TestParseToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    identity.Lookup
		wantErr error
	}{
		{
			name:  "full identifier",
			token: string(sampleID),
			want:  identity.Lookup{Kind: identity.ByIdentifier, Identifier: sampleID},
		},
		{
			name:  "lowercase identifier is normalized",
			token: strings.ToLower(string(sampleID)),
			want:  identity.Lookup{Kind: identity.ByIdentifier, Identifier: sampleID},
		},
		{
			name:  "intern label",
			token: "INT-T6V4-B1C9-D0",
			want:  identity.Lookup{Kind: identity.BySuffix, Suffix: "T6V4B1C9D0"},
		},
		{
			name:  "employee label",
			token: "T6V4-B1C9-D0",
			want:  identity.Lookup{Kind: identity.BySuffix, Suffix: "T6V4B1C9D0"},
		},
		{
			name:    "label shape with excluded letters",
			token:   "INT-IIII-LLLL-OO",
			wantErr: generic.ErrNotFound,
		},
		{
			name:    "empty",
			token:   "   ",
			wantErr: generic.ErrNotFound,
		},
		{
			name:  "other shapes fall back to identifier lookup",
			token: "legacy-42",
			want:  identity.Lookup{Kind: identity.ByIdentifier, Identifier: "LEGACY-42"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := identity.ParseToken(tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
