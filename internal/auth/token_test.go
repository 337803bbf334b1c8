package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenIssueVerify(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	subject, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "a@x.com" {
		t.Fatalf("subject mismatch: %q", subject)
	}
}

func TestTokenExpiry(t *testing.T) {
	svc := NewTokenService("test-secret", 50*time.Millisecond)
	token, err := svc.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenTampered(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := svc.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-one", time.Hour)
	verifier := NewTokenService("secret-two", time.Hour)
	token, err := issuer.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestTokenMissingSubject(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue("")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty subject, got %v", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	for _, garbage := range []string{"", "abc", "a.b.c", "ey.ey.ey"} {
		if _, err := svc.Verify(garbage); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", garbage, err)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	svc := NewTokenService("test-secret", 0)
	if svc.TokenTTL() != DefaultTokenTTL {
		t.Fatalf("expected default ttl, got %v", svc.TokenTTL())
	}
}
