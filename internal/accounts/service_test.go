package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	labmail "github.com/quantalab/labauth/internal/mail"
	"github.com/quantalab/labauth/params"
)

type fakeMailSender struct {
	sent []*labmail.Message
}

func (f *fakeMailSender) Send(message *labmail.Message) error {
	f.sent = append(f.sent, message)
	return nil
}

func newTestService(t *testing.T, sender labmail.MailSender) (*Service, *time.Time) {
	t.Helper()
	repo := NewMemoryAccountRepository()
	svc := NewService(repo, sender, "http://lab.example.org", 3, 15*time.Minute)
	now := time.Now()
	svc.SetNowFunc(func() time.Time { return now })
	return svc, &now
}

func mustCreateAccount(t *testing.T, svc *Service, email string) uint64 {
	t.Helper()
	account, err := svc.Create(context.Background(), CreateAccountOptions{
		Email:         email,
		Password:      "correct horse",
		Role:          "editor",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return account.ID
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, nil)
	mustCreateAccount(t, svc, "alice@lab.example.org")

	account, err := svc.Authenticate(context.Background(), "alice@lab.example.org", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if account.LastLoginAt == nil {
		t.Errorf("expected LastLoginAt to be set on success")
	}

	if _, err := svc.Authenticate(context.Background(), "alice@lab.example.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@lab.example.org", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	svc, _ := newTestService(t, nil)
	id := mustCreateAccount(t, svc, "alice@lab.example.org")

	if err := svc.SetDisabled(context.Background(), id, true); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice@lab.example.org", "correct horse"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("got %v, want ErrAccountDisabled", err)
	}
}

func TestAuthenticateLocksAfterRepeatedFailures(t *testing.T) {
	svc, now := newTestService(t, nil)
	mustCreateAccount(t, svc, "alice@lab.example.org")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: got %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// the correct password no longer works while the lock holds
	account, err := svc.Authenticate(ctx, "alice@lab.example.org", "correct horse")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("got %v, want ErrAccountLocked", err)
	}
	if account == nil || account.LockedUntil == nil {
		t.Fatalf("expected locked account with LockedUntil set")
	}

	// after the window the lock expires and the counter resets
	*now = now.Add(15*time.Minute + time.Second)
	if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "correct horse"); err != nil {
		t.Fatalf("after lock window: %v", err)
	}
}

func TestExpiredLockResetsFailureCount(t *testing.T) {
	svc, now := newTestService(t, nil)
	mustCreateAccount(t, svc, "alice@lab.example.org")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Authenticate(ctx, "alice@lab.example.org", "wrong")
	}
	if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "correct horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("got %v, want ErrAccountLocked", err)
	}

	// a single mistype after the window must not re-lock for another window
	*now = now.Add(15*time.Minute + time.Second)
	if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("first failure after expiry: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "correct horse"); err != nil {
		t.Fatalf("correct password right after: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateAccountOptions{Email: "not-an-email", Password: "longenough"}); err == nil {
		t.Errorf("expected error for invalid email")
	}
	if _, err := svc.Create(ctx, CreateAccountOptions{Email: "a@b.org", Password: "short"}); err == nil {
		t.Errorf("expected error for short password")
	}
	if _, err := svc.Create(ctx, CreateAccountOptions{Email: "a@b.org", Password: "longenough", Role: "overlord"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("got %v, want ErrInvalidRole", err)
	}

	mustCreateAccount(t, svc, "alice@lab.example.org")
	if _, err := svc.Create(ctx, CreateAccountOptions{Email: "alice@lab.example.org", Password: "longenough"}); !errors.Is(err, ErrEmailRegistered) {
		t.Errorf("got %v, want ErrEmailRegistered", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	sender := &fakeMailSender{}
	svc, now := newTestService(t, sender)
	mustCreateAccount(t, svc, "alice@lab.example.org")
	ctx := context.Background()

	// unknown emails are silently accepted and send nothing
	if err := svc.RequestPasswordReset(ctx, "nobody@lab.example.org"); err != nil {
		t.Fatalf("RequestPasswordReset unknown: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail for unknown email, got %d", len(sender.sent))
	}

	if err := svc.RequestPasswordReset(ctx, "alice@lab.example.org"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 reset mail, got %d", len(sender.sent))
	}

	body := sender.sent[0].Body
	wantExpiry := fmt.Sprintf("%d minutes", int(params.ResetTokenExpiration.Minutes()))
	if !strings.Contains(body, wantExpiry) {
		t.Errorf("reset mail does not state the %s expiry window:\n%s", wantExpiry, body)
	}
	marker := "?token="
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatalf("reset mail has no token link:\n%s", body)
	}
	resetToken := body[idx+len(marker):]
	if end := strings.IndexAny(resetToken, "\"& \n"); end >= 0 {
		resetToken = resetToken[:end]
	}

	if _, err := svc.ResetPassword(ctx, "bogus-token", "new password"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("bogus token: got %v, want ErrInvalidResetToken", err)
	}
	if _, err := svc.ResetPassword(ctx, resetToken, "new password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@lab.example.org", "new password"); err != nil {
		t.Fatalf("Authenticate after reset: %v", err)
	}

	// the token is single use
	if _, err := svc.ResetPassword(ctx, resetToken, "another password"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("reused token: got %v, want ErrInvalidResetToken", err)
	}

	// a fresh token dies after its expiry window
	if err := svc.RequestPasswordReset(ctx, "alice@lab.example.org"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	*now = now.Add(31 * time.Minute)
	body = sender.sent[1].Body
	idx = strings.Index(body, marker)
	expiredToken := body[idx+len(marker):]
	if end := strings.IndexAny(expiredToken, "\"& \n"); end >= 0 {
		expiredToken = expiredToken[:end]
	}
	if _, err := svc.ResetPassword(ctx, expiredToken, "late password"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("expired token: got %v, want ErrInvalidResetToken", err)
	}
}
