package auth

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	m := NewManager("round-trip-secret", time.Hour)

	token, err := m.Generate(42, "ada@example.com", "user")

	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.Verify(token)

	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.UserID != 42 || claims.Email != "ada@example.com" || claims.Role != "user" {
		t.Fatalf("claims = %+v, want the issued identity", claims)
	}

	if claims.Subject != strconv.FormatInt(42, 10) {
		t.Fatalf("subject = %q, want %q", claims.Subject, "42")
	}

	if claims.JTI == "" {
		t.Fatal("token carries no jti")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-one", time.Hour).Generate(1, "a@b.c", "user")

	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewManager("secret-two", time.Hour).Verify(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("expiry-secret", -time.Minute)

	token, err := m.Generate(1, "a@b.c", "user")

	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := m.Verify(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("garbage-secret", time.Hour)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.Verify(raw); err != ErrInvalidToken {
			t.Fatalf("Verify(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}

// A token signed with "none" must not be accepted even though it parses.
func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	m := NewManager("alg-secret", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)

	if err != nil {
		t.Fatalf("sign with none: %v", err)
	}

	if _, err := m.Verify(raw); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	m := NewManager("uid-secret", time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "anonymous@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	raw, err := token.SignedString([]byte("uid-secret"))

	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.Verify(raw); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
