package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestGenerateAPIToken tests token format and uniqueness
func TestGenerateAPIToken(t *testing.T) {
	token, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if len(token) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Errorf("Token should be valid hex: %v", err)
	}

	other, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("Failed to generate second token: %v", err)
	}
	if token == other {
		t.Error("Consecutive tokens should differ")
	}
}

// TestHashToken tests digest size and determinism
func TestHashToken(t *testing.T) {
	token := "a3f1c2d4e5b6978812345678901234567890123456789012345678901234abcd"

	digest := HashToken(token)
	if len(digest) != 32 {
		t.Errorf("Expected 32-byte digest, got %d bytes", len(digest))
	}
	if !bytes.Equal(digest, HashToken(token)) {
		t.Error("Same token should hash to same digest")
	}
	if bytes.Equal(digest, HashToken(token+"x")) {
		t.Error("Different tokens should hash to different digests")
	}
}
