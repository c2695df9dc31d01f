// Package pipeline holds the per-message side computations that run around
// message store writes: the reversible content transform applied at rest,
// text classification, and media placement. Everything here is stateless
// given its inputs.
package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrBadToken indicates a token that could not be decoded or authenticated.
var ErrBadToken = errors.New("malformed or unauthenticated content token")

// ErrBadKey indicates a master key of the wrong size.
var ErrBadKey = errors.New("master key must be 32 bytes")

// Cipher implements the obscure/reveal transform with authenticated
// encryption. Tokens are NaCl secretbox ciphertexts under a per-conversation
// subkey, with the nonce derived from the plaintext (SIV construction) so the
// transform stays deterministic: the same text in the same conversation
// always produces the same token, and Reveal is its exact inverse.
type Cipher struct {
	master [32]byte
}

// NewCipher creates a Cipher from a 32-byte master key.
func NewCipher(master []byte) (*Cipher, error) {
	if len(master) != 32 {
		return nil, ErrBadKey
	}
	c := &Cipher{}
	copy(c.master[:], master)
	return c, nil
}

// conversationKey derives the subkey for one conversation from the master key.
func (c *Cipher) conversationKey(conversation string) [32]byte {
	mac := hmac.New(sha256.New, c.master[:])
	mac.Write([]byte(conversation))
	var key [32]byte
	copy(key[:], mac.Sum(nil))
	return key
}

// Obscure encrypts text for storage, scoped to a conversation key.
func (c *Cipher) Obscure(conversation, text string) (string, error) {
	key := c.conversationKey(conversation)

	// Synthetic nonce: MAC of the plaintext under the subkey. Identical
	// plaintext yields an identical token, which the dedupe rules rely on.
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(text))
	var nonce [nonceSize]byte
	copy(nonce[:], mac.Sum(nil))

	sealed := secretbox.Seal(nonce[:], []byte(text), &nonce, &key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Reveal decrypts a token produced by Obscure for the same conversation.
func (c *Cipher) Reveal(conversation, token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrBadToken
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrBadToken
	}
	key := c.conversationKey(conversation)
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	text, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key)
	if !ok {
		return "", ErrBadToken
	}
	return string(text), nil
}
