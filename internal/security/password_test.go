package security

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2-but-longer")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if hash == "hunter2-but-longer" {
		t.Fatal("hash equals the plaintext")
	}

	if !CheckPassword(hash, "hunter2-but-longer") {
		t.Fatal("correct password rejected")
	}

	if CheckPassword(hash, "hunter2-but-wrong") {
		t.Fatal("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	first, err := HashPassword("same-password-twice")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	second, err := HashPassword("same-password-twice")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if first == second {
		t.Fatal("two hashes of the same password are identical")
	}
}

// bcrypt refuses input past 72 bytes rather than silently truncating.
func TestHashPasswordOverlongInput(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected an error for a 73-byte password")
	}
}

func TestCheckPasswordGarbageHash(t *testing.T) {
	if CheckPassword("not-a-bcrypt-hash", "whatever") {
		t.Fatal("garbage hash accepted")
	}
}
