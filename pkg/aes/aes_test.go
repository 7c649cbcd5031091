package aes

import (
	"bytes"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := DeriveKey("local-secret", "u1", "session-credential")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("key size = %d", len(key))
	}

	plain := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	enc, err := Encrypt(plain, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(enc, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	k1, _ := DeriveKey("secret-a", "u1", "session-credential")
	k2, _ := DeriveKey("secret-b", "u1", "session-credential")
	enc, err := Encrypt([]byte("token"), k1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(enc, k2); err == nil {
		t.Fatalf("expected authentication failure")
	}
}

func TestDecryptShortInput(t *testing.T) {
	key, _ := DeriveKey("s", "salt", "info")
	if _, err := Decrypt("AAAA", key); err == nil {
		t.Fatalf("expected error for short ciphertext")
	}
}
