package token

import (
	"strings"
	"testing"
)

func testMasterKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}

func TestCipherSelfTest(t *testing.T) {
	c, err := NewCipher(testMasterKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if err := c.SelfTest(); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	if _, err := NewCipher([]byte("too-short")); err == nil {
		t.Fatal("expected error for short master key")
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testMasterKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	ct, err := c.Encrypt("access_token", "42", "b24", "super-secret-value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(ct, "super-secret-value") {
		t.Fatal("ciphertext leaks plaintext")
	}
	pt, err := c.Decrypt("access_token", "42", "b24", ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "super-secret-value" {
		t.Fatalf("got %q, want %q", pt, "super-secret-value")
	}
}

func TestCipherDecryptWrongContextFails(t *testing.T) {
	c, err := NewCipher(testMasterKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	ct, err := c.Encrypt("access_token", "42", "b24", "value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt("refresh_token", "42", "b24", ct); err == nil {
		t.Fatal("expected decrypt to fail under a different derived key context")
	}
	if _, err := c.Decrypt("access_token", "99", "b24", ct); err == nil {
		t.Fatal("expected decrypt to fail for a different user id")
	}
}
