package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/quantalab/labauth/internal/token"
)

// LoginHandler serves the admin login and password-reset pages. Form
// submission happens client-side against the JSON API.
type LoginHandler struct {
	tokens     *token.Service
	cookieName string
	siteName   string
}

func NewLoginHandler(tokens *token.Service, cookieName string, siteName string) *LoginHandler {
	return &LoginHandler{
		tokens:     tokens,
		cookieName: cookieName,
		siteName:   siteName,
	}
}

func (h *LoginHandler) isAuthenticated(ctx *fiber.Ctx) bool {
	tokenStr := ctx.Cookies(h.cookieName)
	if tokenStr == "" {
		return false
	}
	_, err := h.tokens.Verify(tokenStr)
	return err == nil
}

func (h *LoginHandler) GetLogin(ctx *fiber.Ctx) error {
	if h.isAuthenticated(ctx) {
		return ctx.Redirect("/admin")
	}
	return ctx.Render("login", fiber.Map{
		"siteName": h.siteName,
	})
}

func (h *LoginHandler) GetResetPassword(ctx *fiber.Ctx) error {
	return ctx.Render("reset-password", fiber.Map{
		"siteName": h.siteName,
		"token":    ctx.Query("token"),
	})
}

// GetAdminHome renders the dashboard; the gate has already authenticated the
// request by the time this runs.
func (h *LoginHandler) GetAdminHome(ctx *fiber.Ctx) error {
	return ctx.Render("admin", fiber.Map{
		"siteName": h.siteName,
	})
}
