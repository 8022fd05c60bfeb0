package token

import (
	"strings"
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	tokenStr, err := svc.Issue("12345", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := svc.Verify(tokenStr)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "12345" {
		t.Fatalf("expected subject 12345, got %q", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role admin, got %q", claims.Role)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	issued := time.Now()
	svc.SetNowFunc(func() time.Time { return issued })
	tokenStr, err := svc.Issue("12345", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	svc.SetNowFunc(func() time.Time { return issued.Add(30 * time.Minute) })
	if _, err := svc.Verify(tokenStr); err != nil {
		t.Fatalf("token should still be valid before expiry: %v", err)
	}

	svc.SetNowFunc(func() time.Time { return issued.Add(time.Hour + time.Second) })
	if _, err := svc.Verify(tokenStr); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	tokenStr, err := svc.Issue("12345", "editor")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}

	// flip one character of the signature segment
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := svc.Verify(tampered); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for tampered signature, got %v", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	for _, raw := range []string{"", "abc", "a.b", "a.b.c.d", "not a token at all"} {
		if _, err := svc.Verify(raw); err != ErrTokenInvalid {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", raw, err)
		}
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)
	tokenStr, err := issuer.Issue("12345", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := verifier.Verify(tokenStr); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid under a different secret, got %v", err)
	}
}

func TestVerifyIssuerAudienceMismatch(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	foreign := NewService("test-secret", time.Hour)
	foreign.issuer = "other-service"
	tokenStr, err := foreign.Issue("12345", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := svc.Verify(tokenStr); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for issuer mismatch, got %v", err)
	}

	foreign = NewService("test-secret", time.Hour)
	foreign.audience = "other-audience"
	tokenStr, err = foreign.Issue("12345", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := svc.Verify(tokenStr); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for audience mismatch, got %v", err)
	}
}
