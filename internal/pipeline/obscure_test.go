package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestObscureRevealRoundTrip(t *testing.T) {
	c := testCipher(t)
	for _, text := range []string{"hi", "a longer message with spaces", "유니코드", ""} {
		token, err := c.Obscure("d:alice:bob", text)
		require.NoError(t, err)
		assert.NotEqual(t, text, token)

		got, err := c.Reveal("d:alice:bob", token)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestObscureIsDeterministic(t *testing.T) {
	c := testCipher(t)
	a, err := c.Obscure("g:team", "same text")
	require.NoError(t, err)
	b, err := c.Obscure("g:team", "same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTokensAreConversationScoped(t *testing.T) {
	c := testCipher(t)
	token, err := c.Obscure("d:alice:bob", "secret")
	require.NoError(t, err)

	// same token under another conversation's subkey must not open
	_, err = c.Reveal("d:alice:carol", token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestRevealRejectsTamperedToken(t *testing.T) {
	c := testCipher(t)
	token, err := c.Obscure("g:team", "untouched")
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-1] ^= 'x'
	_, err = c.Reveal("g:team", string(tampered))
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestRevealRejectsGarbage(t *testing.T) {
	c := testCipher(t)
	for _, token := range []string{"", "!!!not-base64!!!", "c2hvcnQ"} {
		_, err := c.Reveal("g:team", token)
		assert.ErrorIs(t, err, ErrBadToken)
	}
}
