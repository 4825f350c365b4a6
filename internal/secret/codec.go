package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/bizboard/auth-server/internal/model"
)

const (
	keyLength = 32
	// pbkdf2 iteration floor; configured values below it are rejected.
	minIterations = 1000
)

// Codec encrypts refresh material with AES-256-GCM. The key is derived once
// at construction: 32-byte keys are used directly, anything else is
// stretched with PBKDF2-SHA256 over the configured salt.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the key and prepares the cipher.
func NewCodec(encryptionKey, salt string, iterations int) (*Codec, error) {
	if iterations < minIterations {
		return nil, fmt.Errorf("iteration count %d below minimum %d", iterations, minIterations)
	}

	key := []byte(encryptionKey)
	if len(key) != keyLength {
		key = pbkdf2.Key([]byte(encryptionKey), []byte(salt), iterations, keyLength, sha256.New)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext). Ciphertext differs across
// calls for the same plaintext because the nonce is random.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or unauthenticated input yields
// model.ErrDecryptFailed.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", model.ErrDecryptFailed
	}
	if len(raw) < c.aead.NonceSize() {
		return "", model.ErrDecryptFailed
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", model.ErrDecryptFailed
	}

	return string(plaintext), nil
}
