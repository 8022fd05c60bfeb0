package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/quantalab/labauth/internal/common"
	labmail "github.com/quantalab/labauth/internal/mail"
	"github.com/quantalab/labauth/model"
	"github.com/quantalab/labauth/params"
)

type CreateAccountOptions struct {
	Email         string
	Password      string
	Role          string
	EmailVerified bool
}

type Service struct {
	repo        AccountRepository
	mailSender  labmail.MailSender
	baseURL     string
	maxFailures int
	lockPeriod  time.Duration
	nowFunc     func() time.Time
}

func NewService(repo AccountRepository, mailSender labmail.MailSender, baseURL string, maxFailures int, lockPeriod time.Duration) *Service {
	if maxFailures <= 0 {
		maxFailures = params.DefaultMaxLoginAttempts
	}
	if lockPeriod <= 0 {
		lockPeriod = params.DefaultLockoutDuration
	}
	return &Service{
		repo:        repo,
		mailSender:  mailSender,
		baseURL:     baseURL,
		maxFailures: maxFailures,
		lockPeriod:  lockPeriod,
		nowFunc:     time.Now,
	}
}

// SetNowFunc overrides the clock, for lock-window tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.nowFunc = now
}

// Authenticate verifies email/password and returns the account on success.
// Unknown email and wrong password both return ErrInvalidCredentials. When
// the account is locked, the account is returned alongside ErrAccountLocked
// so callers can report the lock expiry.
func (s *Service) Authenticate(ctx context.Context, email string, password string) (*model.Account, error) {
	account, err := s.repo.FirstByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	if account.Disabled {
		return nil, ErrAccountDisabled
	}
	if account.IsLocked(now) {
		return account, ErrAccountLocked
	}
	if account.LockedUntil != nil {
		// lapsed lock: the failure count restarts from zero
		updates := map[string]interface{}{
			ColFailedLoginCount: 0,
			ColLockedUntil:      nil,
		}
		if err := s.repo.Updates(ctx, account.ID, updates); err != nil {
			return nil, err
		}
		account.FailedLoginCount = 0
		account.LockedUntil = nil
	}

	if !common.VerifyPassword(password, account.PasswordHash) {
		return nil, s.recordFailedLogin(ctx, account)
	}

	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	updates := map[string]interface{}{
		ColFailedLoginCount: 0,
		ColLockedUntil:      nil,
		ColLastLoginAt:      now,
	}
	if err := s.repo.Updates(ctx, account.ID, updates); err != nil {
		return nil, err
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now
	return account, nil
}

// recordFailedLogin bumps the account-level failure counter and locks the
// account once the threshold is reached. This is the second lockout layer
// next to the ip-keyed tracker; it catches distributed attempts against a
// single account.
func (s *Service) recordFailedLogin(ctx context.Context, account *model.Account) error {
	failures := account.FailedLoginCount + 1
	updates := map[string]interface{}{
		ColFailedLoginCount: failures,
	}
	if failures >= s.maxFailures {
		lockedUntil := s.nowFunc().Add(s.lockPeriod)
		updates[ColLockedUntil] = lockedUntil
		account.LockedUntil = &lockedUntil
	}
	if err := s.repo.Updates(ctx, account.ID, updates); err != nil {
		slog.Error("Failed to record login failure", "account", account.ID, "error", err)
	}
	return ErrInvalidCredentials
}

func (s *Service) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	return s.repo.FirstByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Create(ctx context.Context, opts CreateAccountOptions) (*model.Account, error) {
	if _, err := mail.ParseAddress(opts.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(opts.Password); err != nil {
		return nil, err
	}
	if opts.Role == "" {
		opts.Role = model.RoleEditor
	}
	if !model.ValidRole(opts.Role) {
		return nil, ErrInvalidRole
	}

	passwordHash, err := common.HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}
	account := model.Account{
		Email:         opts.Email,
		PasswordHash:  passwordHash,
		Role:          opts.Role,
		EmailVerified: opts.EmailVerified,
	}
	if err := s.repo.Create(ctx, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) SetDisabled(ctx context.Context, id uint64, disabled bool) error {
	return s.repo.Updates(ctx, id, map[string]interface{}{ColDisabled: disabled})
}

func (s *Service) SetRole(ctx context.Context, id uint64, role string) error {
	if !model.ValidRole(role) {
		return ErrInvalidRole
	}
	return s.repo.Updates(ctx, id, map[string]interface{}{ColRole: role})
}

// UpdatePassword rehashes the password and clears any lock state so a reset
// immediately restores access.
func (s *Service) UpdatePassword(ctx context.Context, id uint64, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	passwordHash, err := common.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.Updates(ctx, id, map[string]interface{}{
		ColPasswordHash:     passwordHash,
		ColFailedLoginCount: 0,
		ColLockedUntil:      nil,
	})
}

// RequestPasswordReset issues a single-use reset token and mails the reset
// link. Unknown emails are not reported back to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.repo.FirstByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resetToken := uuid.NewString()
	expiresAt := s.nowFunc().Add(params.ResetTokenExpiration)
	updates := map[string]interface{}{
		ColResetToken:          resetToken,
		ColResetTokenExpiresAt: expiresAt,
	}
	if err := s.repo.Updates(ctx, account.ID, updates); err != nil {
		return err
	}

	if s.mailSender == nil {
		slog.Warn("No mail sender configured, skipping reset mail", "account", account.ID)
		return nil
	}
	resetLink, err := url.JoinPath(s.baseURL, "admin", "reset-password")
	if err != nil {
		return err
	}
	resetLink += "?token=" + resetToken
	return labmail.SendPasswordResetLink(s.mailSender, account.Email, resetLink)
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, resetToken string, newPassword string) (*model.Account, error) {
	account, err := s.repo.FirstByResetToken(ctx, resetToken)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidResetToken
	}
	if err != nil {
		return nil, err
	}
	if account.ResetTokenExpiresAt == nil || !account.ResetTokenExpiresAt.After(s.nowFunc()) {
		return nil, ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}

	passwordHash, err := common.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		ColPasswordHash:        passwordHash,
		ColResetToken:          "",
		ColResetTokenExpiresAt: nil,
		ColFailedLoginCount:    0,
		ColLockedUntil:         nil,
	}
	if err := s.repo.Updates(ctx, account.ID, updates); err != nil {
		return nil, err
	}
	return account, nil
}
