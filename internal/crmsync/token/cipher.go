// Package token implements the encrypted OAuth token store (component A).
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash { return sha256.New() }

// ErrSelfTestFailed is returned by SelfTest when the round-trip sentinel
// does not survive encrypt/decrypt; the caller MUST refuse to start.
var ErrSelfTestFailed = errors.New("token cipher self-test failed")

const selfTestSentinel = "bitrix-token-cipher-self-test-v1"

// Cipher is an authenticated-symmetric cipher for token-store values. It is
// initialized from a single 32-byte master key and derives a distinct
// AES-GCM subkey per (kind, userID, provider) via HKDF, so compromise of
// one stored ciphertext's derived key does not expose the master key.
type Cipher struct {
	master [32]byte
}

// NewCipher builds a Cipher from a 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("token cipher: master key must be 32 bytes, got %d", len(masterKey))
	}
	c := &Cipher{}
	copy(c.master[:], masterKey)
	return c, nil
}

// SelfTest round-trips a sentinel plaintext through Encrypt/Decrypt and
// returns ErrSelfTestFailed on any mismatch. Call once at process startup;
// refuse to start the service if it fails.
func (c *Cipher) SelfTest() error {
	ct, err := c.Encrypt("access_token", "self-test", "self-test", selfTestSentinel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfTestFailed, err)
	}
	pt, err := c.Decrypt("access_token", "self-test", "self-test", ct)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfTestFailed, err)
	}
	if pt != selfTestSentinel {
		return ErrSelfTestFailed
	}
	return nil
}

func (c *Cipher) deriveKey(kind, userID, provider string) ([]byte, error) {
	info := []byte("token:" + kind + ":user:" + userID + ":provider:" + provider)
	r := hkdf.New(newSHA256, c.master[:], nil, info)
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext for the given (kind, userID, provider) and
// returns a base64-encoded nonce||ciphertext.
func (c *Cipher) Encrypt(kind, userID, provider, plaintext string) (string, error) {
	key, err := c.deriveKey(kind, userID, provider)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64-encoded ciphertext produced by Encrypt for the
// same (kind, userID, provider) tuple.
func (c *Cipher) Decrypt(kind, userID, provider, encoded string) (string, error) {
	key, err := c.deriveKey(kind, userID, provider)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("token cipher: ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
