// Package authgate is the composition point of the authentication layer: it
// intercepts requests to protected routes, validates the bearer token and
// injects the resulting identity into the request context. Downstream
// handlers trust that identity without re-verifying.
package authgate

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/quantalab/labauth/internal/audit"
	"github.com/quantalab/labauth/internal/token"
	"github.com/quantalab/labauth/params"
)

const identityContextKey = "authIdentity"

// Identity is the authenticated principal attached to the request context.
type Identity struct {
	AccountID string
	Role      string
}

// From returns the identity injected by the gate, if any.
func From(ctx *fiber.Ctx) (Identity, bool) {
	identity, ok := ctx.Locals(identityContextKey).(Identity)
	return identity, ok
}

type Config struct {
	Tokens     *token.Service
	CookieName string
	LoginPath  string
	Audit      *audit.Logger
}

func applyDefaults(config Config) Config {
	if config.CookieName == "" {
		config.CookieName = params.SessionCookieName
	}
	if config.LoginPath == "" {
		config.LoginPath = params.AdminLoginPath
	}
	return config
}

// New returns the gate middleware. Requests without a valid token are
// redirected to the login page (browser navigations) or answered with a 401
// JSON error (API clients); an invalid token also clears the cookie.
func New(config Config) fiber.Handler {
	config = applyDefaults(config)
	return func(ctx *fiber.Ctx) error {
		tokenStr := extractToken(ctx, config.CookieName)
		if tokenStr == "" {
			return deny(ctx, config)
		}

		claims, err := config.Tokens.Verify(tokenStr)
		if err != nil {
			config.Audit.RecordTokenInvalid(ctx.Context(), ctx.IP(), ctx.Get(fiber.HeaderUserAgent), err.Error())
			ClearCookie(ctx, config.CookieName)
			return deny(ctx, config)
		}

		ctx.Locals(identityContextKey, Identity{
			AccountID: claims.Subject,
			Role:      claims.Role,
		})
		return ctx.Next()
	}
}

// RequireRole allows the request through only when the gate-injected identity
// carries one of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		identity, ok := From(ctx)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}
		for _, role := range roles {
			if identity.Role == role {
				return ctx.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Insufficient permissions")
	}
}

// extractToken looks in the Authorization header first, then the cookie.
func extractToken(ctx *fiber.Ctx, cookieName string) string {
	authHeader := ctx.Get(fiber.HeaderAuthorization)
	if authHeader != "" {
		scheme, rest, found := strings.Cut(authHeader, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if tokenStr := strings.TrimSpace(rest); tokenStr != "" {
				return tokenStr
			}
		}
	}
	return ctx.Cookies(cookieName)
}

// ClearCookie expires the bearer token cookie on the client.
func ClearCookie(ctx *fiber.Ctx, cookieName string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func deny(ctx *fiber.Ctx, config Config) error {
	if wantsHTML(ctx) {
		return ctx.Redirect(config.LoginPath)
	}
	return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
}

// wantsHTML detects a browser navigation as opposed to an API call.
func wantsHTML(ctx *fiber.Ctx) bool {
	return ctx.Method() == fiber.MethodGet && strings.Contains(ctx.Get(fiber.HeaderAccept), "text/html")
}
