package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/quantalab/labauth/internal/accounts"
	"github.com/quantalab/labauth/internal/audit"
	"github.com/quantalab/labauth/internal/common"
	"github.com/quantalab/labauth/internal/lockout"
	"github.com/quantalab/labauth/internal/middlewares/authgate"
	"github.com/quantalab/labauth/internal/token"
	"github.com/quantalab/labauth/model"
)

// fixedAdminSubject identifies logins through the configured fallback
// password; there is no account row behind it.
const fixedAdminSubject = "admin"

type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler serves login, logout and the password-reset endpoints.
type AuthHandler struct {
	accountService *accounts.Service // nil when running without an account store
	tokens         *token.Service
	tracker        *lockout.Tracker
	auditLog       *audit.Logger
	adminPassword  string // fixed fallback secret, empty to disable
	cookie         CookieConfig
}

func NewAuthHandler(
	accountService *accounts.Service,
	tokens *token.Service,
	tracker *lockout.Tracker,
	auditLog *audit.Logger,
	adminPassword string,
	cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		tokens:         tokens,
		tracker:        tracker,
		auditLog:       auditLog,
		adminPassword:  adminPassword,
		cookie:         cookie,
	}
}

func (h *AuthHandler) setTokenCookie(ctx *fiber.Ctx, tokenStr string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    tokenStr,
		Path:     "/",
		MaxAge:   int(h.tokens.Lifetime().Seconds()),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func lockoutResponse(ctx *fiber.Ctx, until time.Time) error {
	return ctx.Status(fiber.StatusLocked).JSON(loginFailureResponse{
		Error:         "Too many failed login attempts. Please try again later.",
		IsLocked:      true,
		LockoutExpiry: until.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body")
	}
	if req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Password is required")
	}

	clientIP := ctx.IP()
	userAgent := ctx.Get(fiber.HeaderUserAgent)
	if locked, until := h.tracker.IsLocked(ctx.Context(), clientIP); locked {
		h.auditLog.RecordLockout(ctx.Context(), req.Email, clientIP, userAgent, "login attempt while locked")
		return lockoutResponse(ctx, until)
	}

	if req.Email == "" {
		return h.loginFixedAdmin(ctx, req.Password)
	}
	return h.loginAccount(ctx, req)
}

// loginFixedAdmin handles the single-shared-password mode used when no
// account store is configured.
func (h *AuthHandler) loginFixedAdmin(ctx *fiber.Ctx, password string) error {
	if h.adminPassword == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Email is required")
	}
	if !common.VerifyStaticSecret(password, h.adminPassword) {
		return h.loginFailed(ctx, fixedAdminSubject, "wrong admin password")
	}
	return h.loginSucceeded(ctx, fixedAdminSubject, model.RoleSuperAdmin, "")
}

func (h *AuthHandler) loginAccount(ctx *fiber.Ctx, req loginRequest) error {
	if h.accountService == nil {
		return h.loginFailed(ctx, req.Email, "no account store configured")
	}

	account, err := h.accountService.Authenticate(ctx.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		return h.loginSucceeded(ctx, strconv.FormatUint(account.ID, 10), account.Role, account.Email)
	case errors.Is(err, accounts.ErrAccountLocked):
		h.auditLog.RecordLockout(ctx.Context(), req.Email, ctx.IP(), ctx.Get(fiber.HeaderUserAgent), "account locked")
		return lockoutResponse(ctx, *account.LockedUntil)
	case errors.Is(err, accounts.ErrAccountDisabled):
		h.auditLog.RecordLogin(ctx.Context(), audit.LoginRecord{
			Email: req.Email, IP: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent), Reason: "account disabled",
		})
		return ctx.Status(fiber.StatusForbidden).JSON(loginFailureResponse{
			Error: "Account is disabled",
		})
	case errors.Is(err, accounts.ErrEmailNotVerified):
		return ctx.Status(fiber.StatusForbidden).JSON(loginFailureResponse{
			Error:                     "Email address is not verified",
			RequiresEmailVerification: true,
		})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return h.loginFailed(ctx, req.Email, "invalid credentials")
	default:
		return err
	}
}

func (h *AuthHandler) loginFailed(ctx *fiber.Ctx, email string, reason string) error {
	clientIP := ctx.IP()
	userAgent := ctx.Get(fiber.HeaderUserAgent)
	locked, until, err := h.tracker.RecordFailure(ctx.Context(), clientIP)
	if err != nil {
		return err
	}
	h.auditLog.RecordLogin(ctx.Context(), audit.LoginRecord{
		Email: email, IP: clientIP, UserAgent: userAgent, Reason: reason,
	})
	if locked {
		h.auditLog.RecordLockout(ctx.Context(), email, clientIP, userAgent,
			"lockout until "+until.UTC().Format(time.RFC3339))
	}
	return ctx.Status(fiber.StatusUnauthorized).JSON(loginFailureResponse{
		Error: "Invalid email or password",
	})
}

func (h *AuthHandler) loginSucceeded(ctx *fiber.Ctx, subjectID string, role string, email string) error {
	clientIP := ctx.IP()
	if err := h.tracker.Clear(ctx.Context(), clientIP); err != nil {
		return err
	}

	tokenStr, err := h.tokens.Issue(subjectID, role)
	if err != nil {
		return err
	}
	h.setTokenCookie(ctx, tokenStr)

	accountID, _ := strconv.ParseUint(subjectID, 10, 64)
	h.auditLog.RecordLogin(ctx.Context(), audit.LoginRecord{
		AccountID: accountID,
		Email:     email,
		IP:        clientIP,
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Success:   true,
	})
	return ctx.JSON(loginSuccessResponse{
		Success: true,
		User:    userInfo{ID: subjectID, Email: email, Role: role},
	})
}

// Logout clears the token cookie. It always reports success, even when no
// session existed; tokens themselves stay valid until expiry.
func (h *AuthHandler) Logout(ctx *fiber.Ctx) error {
	if tokenStr := ctx.Cookies(h.cookie.Name); tokenStr != "" {
		if claims, err := h.tokens.Verify(tokenStr); err == nil {
			accountID, _ := strconv.ParseUint(claims.Subject, 10, 64)
			h.auditLog.RecordLogout(ctx.Context(), accountID, ctx.IP(), ctx.Get(fiber.HeaderUserAgent))
		}
	}
	authgate.ClearCookie(ctx, h.cookie.Name)
	return ctx.JSON(okResponse{Success: true})
}

// GetMe reports the identity behind the presented token.
func (h *AuthHandler) GetMe(ctx *fiber.Ctx) error {
	identity, ok := authgate.From(ctx)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	info := userInfo{ID: identity.AccountID, Role: identity.Role}
	if h.accountService != nil && identity.AccountID != fixedAdminSubject {
		if accountID, err := strconv.ParseUint(identity.AccountID, 10, 64); err == nil {
			if account, err := h.accountService.GetByID(ctx.Context(), accountID); err == nil {
				info.Email = account.Email
			}
		}
	}
	return ctx.JSON(fiber.Map{"success": true, "user": info})
}

// PostForgotPassword always reports success so responses cannot be used to
// probe which emails have accounts.
func (h *AuthHandler) PostForgotPassword(ctx *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := ctx.BodyParser(&req); err != nil || req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Email is required")
	}
	if h.accountService != nil {
		if err := h.accountService.RequestPasswordReset(ctx.Context(), req.Email); err != nil {
			return err
		}
		h.auditLog.Record(ctx.Context(), &model.AuditEvent{
			Email:     req.Email,
			Action:    audit.ActionPasswordResetRequested,
			IP:        ctx.IP(),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
		})
	}
	return ctx.JSON(okResponse{Success: true, Message: "If the address has an account, a reset link has been sent."})
}

func (h *AuthHandler) PostResetPassword(ctx *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := ctx.BodyParser(&req); err != nil || req.Token == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Token and password are required")
	}
	if h.accountService == nil {
		return fiber.NewError(fiber.StatusBadRequest, "Password reset is not available")
	}

	account, err := h.accountService.ResetPassword(ctx.Context(), req.Token, req.Password)
	if errors.Is(err, accounts.ErrInvalidResetToken) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired reset token")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.auditLog.Record(ctx.Context(), &model.AuditEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Action:    audit.ActionPasswordResetCompleted,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	})
	return ctx.JSON(okResponse{Success: true})
}
