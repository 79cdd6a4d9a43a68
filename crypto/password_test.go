package crypto

import (
	"strings"
	"testing"
)

// TestHashPassword tests the encoded hash format
func TestHashPassword(t *testing.T) {
	password := "SecurePassword123!"
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}

	hash := HashPassword(password, salt)

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Error("Hash should start with $argon2id$")
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Errorf("Hash should have 6 parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		t.Errorf("Expected algorithm argon2id, got %s", parts[1])
	}
}

// TestHashPasswordDeterministic tests that same password and salt produce same hash
func TestHashPasswordDeterministic(t *testing.T) {
	password := "TestPassword123"
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}

	hash1 := HashPassword(password, salt)
	hash2 := HashPassword(password, salt)

	if hash1 != hash2 {
		t.Error("Same password and salt should produce same hash")
	}
}

// TestHashPasswordDifferentSalts tests that different salts produce different hashes
func TestHashPasswordDifferentSalts(t *testing.T) {
	password := "SamePassword123"

	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt1: %v", err)
	}
	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt2: %v", err)
	}

	if HashPassword(password, salt1) == HashPassword(password, salt2) {
		t.Error("Different salts should produce different hashes")
	}
}

// TestVerifyPassword tests verification against the stored hash
func TestVerifyPassword(t *testing.T) {
	password := "CorrectPassword123!"
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}
	hash := HashPassword(password, salt)

	if !VerifyPassword(password, hash) {
		t.Error("Correct password should verify")
	}
	if VerifyPassword("WrongPassword123!", hash) {
		t.Error("Wrong password should not verify")
	}
	if VerifyPassword("", hash) {
		t.Error("Empty password should not verify")
	}
}

// TestVerifyPasswordMalformedHash tests that malformed hashes are rejected
func TestVerifyPasswordMalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty hash", ""},
		{"missing parts", "$argon2id$v=19"},
		{"plain text", "not-a-hash"},
		{"too many parts", "$argon2id$v=19$m=65536,t=3,p=4$salt$hash$extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPassword("anything", tt.hash) {
				t.Error("Malformed hash should never verify")
			}
		})
	}
}

// TestGenerateSalt tests salt length and uniqueness
func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}
	if len(salt1) != 16 {
		t.Errorf("Expected 16-byte salt, got %d bytes", len(salt1))
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}
	if string(salt1) == string(salt2) {
		t.Error("Consecutive salts should differ")
	}
}
