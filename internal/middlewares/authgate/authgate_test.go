package authgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/quantalab/labauth/internal/token"
)

func newTestApp(t *testing.T) (*fiber.App, *token.Service) {
	t.Helper()
	tokens := token.NewService("test-signing-secret", time.Hour)
	app := fiber.New()
	app.Use("/admin", New(Config{Tokens: tokens}))
	app.Get("/admin/dashboard", func(ctx *fiber.Ctx) error {
		identity, ok := From(ctx)
		if !ok {
			t.Errorf("expected identity in context")
		}
		return ctx.JSON(fiber.Map{"id": identity.AccountID, "role": identity.Role})
	})
	app.Get("/admin/super", RequireRole("super_admin"), func(ctx *fiber.Ctx) error {
		return ctx.SendString("ok")
	})
	return app, tokens
}

func TestGateDeniesWithoutToken(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/admin/dashboard", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("got status %d, want 401", resp.StatusCode)
	}
}

func TestGateRedirectsBrowserNavigation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/admin/dashboard", nil)
	req.Header.Set(fiber.HeaderAccept, "text/html,application/xhtml+xml")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Errorf("got status %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get(fiber.HeaderLocation); loc != "/admin/login" {
		t.Errorf("got redirect to %q, want /admin/login", loc)
	}
}

func TestGateAcceptsCookieToken(t *testing.T) {
	app, tokens := newTestApp(t)
	tokenStr, err := tokens.Issue("42", "editor")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "admin-token", Value: tokenStr})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}

func TestGateAcceptsBearerToken(t *testing.T) {
	app, tokens := newTestApp(t)
	tokenStr, err := tokens.Issue("42", "editor")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/admin/dashboard", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tokenStr)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}

func TestGateClearsInvalidCookie(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "admin-token", Value: "not.a.token"})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("got status %d, want 401", resp.StatusCode)
	}

	cleared := false
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "admin-token" && cookie.Value == "" && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Errorf("expected the invalid cookie to be cleared")
	}
}

func TestRequireRole(t *testing.T) {
	app, tokens := newTestApp(t)

	editorToken, _ := tokens.Issue("42", "editor")
	req := httptest.NewRequest(fiber.MethodGet, "/admin/super", nil)
	req.AddCookie(&http.Cookie{Name: "admin-token", Value: editorToken})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("editor on super route: got status %d, want 403", resp.StatusCode)
	}

	superToken, _ := tokens.Issue("1", "super_admin")
	req = httptest.NewRequest(fiber.MethodGet, "/admin/super", nil)
	req.AddCookie(&http.Cookie{Name: "admin-token", Value: superToken})
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("super_admin on super route: got status %d, want 200", resp.StatusCode)
	}
}
