package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrMalformedClaim = errors.New("malformed claim")

// ClaimCipher encrypts the identity claim carried in access tokens with
// AES-256-GCM. The key is the SHA-256 of the payload secret; the output is
// hex(nonce || ciphertext).
type ClaimCipher struct {
	aead cipher.AEAD
}

func NewClaimCipher(secret string) (*ClaimCipher, error) {
	if secret == "" {
		return nil, errors.New("payload secret is empty")
	}

	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &ClaimCipher{aead: aead}, nil
}

func (c *ClaimCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

func (c *ClaimCipher) Decrypt(encoded string) (string, error) {
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedClaim
	}

	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return "", ErrMalformedClaim
	}

	plaintext, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", ErrMalformedClaim
	}

	return string(plaintext), nil
}
