package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New("short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IV length")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec, err := New(testSecret)
	require.NoError(t, err)

	for _, id := range []int64{1, 42, 999, 123456789, 1<<40 + 7} {
		code := codec.Encode(id)
		assert.NotEmpty(t, code)

		got, err := codec.Decode(code)
		require.NoError(t, err, "id %d", id)
		assert.Equal(t, id, got)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	codec, err := New(testSecret)
	require.NoError(t, err)

	// The receipt code is re-derived on every render; it must be stable.
	assert.Equal(t, codec.Encode(42), codec.Encode(42))
}

func TestDecodeMalformedInput(t *testing.T) {
	codec, err := New(testSecret)
	require.NoError(t, err)

	cases := []string{
		"",
		"not base64 at all!!",
		"YWJj", // valid base64, not a cipher block multiple
		strings.Repeat("A", 24),
	}
	for _, code := range cases {
		_, err := codec.Decode(code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestDecodeTamperedCode(t *testing.T) {
	codec, err := New(testSecret)
	require.NoError(t, err)

	code := codec.Encode(42)
	tampered := []byte(code)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	got, err := codec.Decode(string(tampered))
	if err == nil {
		// CBC tampering may still unpad to digits; it must never
		// resolve to the original id.
		assert.NotEqual(t, int64(42), got)
	} else {
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
}

func TestDecodeCodeFromDifferentSecret(t *testing.T) {
	codecA, err := New(testSecret)
	require.NoError(t, err)
	codecB, err := New("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)

	code := codecA.Encode(42)
	got, err := codecB.Decode(code)
	if err == nil {
		assert.NotEqual(t, int64(42), got)
	}
}
