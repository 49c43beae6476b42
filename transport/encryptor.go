package transport

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryptor seals and opens the bytes that cross the wire between the
// gateway and the broker. Selected by security.encryptionEnabled; a nil
// Encryptor (or noopEncryptor) leaves frames in plaintext.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// noopEncryptor passes bytes through unchanged, used when encryption is
// disabled so the multiplexer's send/receive path needs no branch.
type noopEncryptor struct{}

func (noopEncryptor) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (noopEncryptor) Decrypt(b []byte) ([]byte, error) { return b, nil }

// chachaEncryptor seals envelopes with XChaCha20-Poly1305, using a random
// nonce per message (the extended 24-byte nonce makes random generation
// safe for the lifetime of a single key without a counter).
type chachaEncryptor struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewChaCha20Poly1305Encryptor builds an Encryptor from a 32-byte shared
// key, typically the broker's serverKey/clientKey from security config.
func NewChaCha20Poly1305Encryptor(key []byte) (Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("transport: build encryptor: %w", err)
	}
	return &chachaEncryptor{aead: aead}, nil
}

func (c *chachaEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("transport: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func (c *chachaEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("transport: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: open sealed frame: %w", err)
	}
	return plaintext, nil
}
