package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/quantalab/labauth/internal/accounts"
	"github.com/quantalab/labauth/internal/audit"
	"github.com/quantalab/labauth/internal/middlewares/authgate"
	"github.com/quantalab/labauth/params"
)

// AdminHandler serves account management and the audit trail. Routes are
// mounted behind the gate; account mutation additionally requires the
// super_admin role.
type AdminHandler struct {
	accountService *accounts.Service
	auditLog       *audit.Logger
}

func NewAdminHandler(accountService *accounts.Service, auditLog *audit.Logger) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		auditLog:       auditLog,
	}
}

func (h *AdminHandler) requireAccountStore() error {
	if h.accountService == nil {
		return fiber.NewError(fiber.StatusNotFound, "Account management is not available")
	}
	return nil
}

func (h *AdminHandler) GetAccounts(ctx *fiber.Ctx) error {
	if err := h.requireAccountStore(); err != nil {
		return err
	}
	list, err := h.accountService.List(ctx.Context())
	if err != nil {
		return err
	}
	infos := make([]accountInfo, 0, len(list))
	for _, account := range list {
		infos = append(infos, newAccountInfo(account))
	}
	return ctx.JSON(fiber.Map{"success": true, "accounts": infos})
}

func (h *AdminHandler) PostAccounts(ctx *fiber.Ctx) error {
	if err := h.requireAccountStore(); err != nil {
		return err
	}
	var req createAccountRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body")
	}

	account, err := h.accountService.Create(ctx.Context(), accounts.CreateAccountOptions{
		Email:         req.Email,
		Password:      req.Password,
		Role:          req.Role,
		EmailVerified: req.EmailVerified,
	})
	if errors.Is(err, accounts.ErrEmailRegistered) {
		return fiber.NewError(fiber.StatusConflict, "Email already registered")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.recordChange(ctx, audit.ActionAccountCreated, account.ID, account.Email, "role="+account.Role)
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "account": newAccountInfo(account)})
}

func (h *AdminHandler) PatchAccount(ctx *fiber.Ctx) error {
	if err := h.requireAccountStore(); err != nil {
		return err
	}
	accountID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid account id")
	}
	var req updateAccountRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body")
	}

	if req.Role != nil {
		if err := h.accountService.SetRole(ctx.Context(), accountID, *req.Role); err != nil {
			return h.mapUpdateError(err)
		}
		h.recordChange(ctx, audit.ActionAccountUpdated, accountID, "", "role="+*req.Role)
	}
	if req.Password != nil {
		if err := h.accountService.UpdatePassword(ctx.Context(), accountID, *req.Password); err != nil {
			return h.mapUpdateError(err)
		}
		h.recordChange(ctx, audit.ActionAccountUpdated, accountID, "", "password changed")
	}
	if req.Disabled != nil {
		if err := h.accountService.SetDisabled(ctx.Context(), accountID, *req.Disabled); err != nil {
			return h.mapUpdateError(err)
		}
		action := audit.ActionAccountUpdated
		if *req.Disabled {
			action = audit.ActionAccountDisabled
		}
		h.recordChange(ctx, action, accountID, "", "disabled="+strconv.FormatBool(*req.Disabled))
	}

	account, err := h.accountService.GetByID(ctx.Context(), accountID)
	if err != nil {
		return h.mapUpdateError(err)
	}
	return ctx.JSON(fiber.Map{"success": true, "account": newAccountInfo(account)})
}

func (h *AdminHandler) mapUpdateError(err error) error {
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Account not found")
	case errors.Is(err, accounts.ErrInvalidRole):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid role")
	default:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
}

func (h *AdminHandler) recordChange(ctx *fiber.Ctx, action string, accountID uint64, email string, detail string) {
	record := audit.AccountChangeRecord{
		AccountID: accountID,
		Email:     email,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Detail:    detail,
	}
	if identity, ok := authgate.From(ctx); ok {
		if actorID, err := strconv.ParseUint(identity.AccountID, 10, 64); err == nil {
			record.ActorID = actorID
		}
	}
	h.auditLog.RecordAccountChange(ctx.Context(), action, record)
}

// GetAuditEvents returns the most recent security events, newest first.
func (h *AdminHandler) GetAuditEvents(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 100)
	if limit <= 0 || limit > params.AuditLogMaxEvents {
		limit = params.AuditLogMaxEvents
	}
	events, err := h.auditLog.Recent(ctx.Context(), limit)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"success": true, "events": events})
}
