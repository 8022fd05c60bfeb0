// Package audit keeps a bounded trail of security-relevant events. It is a
// diagnostic aid, not a durable audit store: recording never fails the
// request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/quantalab/labauth/model"
)

const (
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionLoginLocked            = "login_locked"
	ActionLogout                 = "logout"
	ActionCSRFRejected           = "csrf_rejected"
	ActionTokenInvalid           = "token_invalid"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordResetCompleted = "password_reset_completed"
	ActionAccountCreated         = "account_created"
	ActionAccountUpdated         = "account_updated"
	ActionAccountDisabled        = "account_disabled"
)

type Logger struct {
	repo EventRepository
}

func NewLogger(repo EventRepository) *Logger {
	return &Logger{repo: repo}
}

// Record appends event to the trail. Failures are logged and swallowed; they
// must never change the outcome of the authentication flow that raised them.
func (l *Logger) Record(ctx context.Context, event *model.AuditEvent) {
	if l == nil || l.repo == nil {
		return
	}
	if err := l.repo.RecordEvent(ctx, event); err != nil {
		slog.Warn("Failed to record audit event", "action", event.Action, "error", err)
	}
}

// Recent returns up to limit events, most recent first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	return l.repo.Recent(ctx, limit)
}

type LoginRecord struct {
	AccountID uint64
	Email     string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

func (l *Logger) RecordLogin(ctx context.Context, record LoginRecord) {
	action := ActionLoginFailure
	if record.Success {
		action = ActionLoginSuccess
	}
	l.Record(ctx, &model.AuditEvent{
		AccountID: record.AccountID,
		Email:     record.Email,
		Action:    action,
		Detail:    record.Reason,
		IP:        record.IP,
		UserAgent: record.UserAgent,
	})
}

func (l *Logger) RecordLockout(ctx context.Context, email, ip, userAgent, detail string) {
	l.Record(ctx, &model.AuditEvent{
		Email:     email,
		Action:    ActionLoginLocked,
		Detail:    detail,
		IP:        ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) RecordLogout(ctx context.Context, accountID uint64, ip, userAgent string) {
	l.Record(ctx, &model.AuditEvent{
		AccountID: accountID,
		Action:    ActionLogout,
		IP:        ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) RecordCSRFRejected(ctx context.Context, ip, userAgent, detail string) {
	l.Record(ctx, &model.AuditEvent{
		Action:    ActionCSRFRejected,
		Detail:    detail,
		IP:        ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) RecordTokenInvalid(ctx context.Context, ip, userAgent, detail string) {
	l.Record(ctx, &model.AuditEvent{
		Action:    ActionTokenInvalid,
		Detail:    detail,
		IP:        ip,
		UserAgent: userAgent,
	})
}

type AccountChangeRecord struct {
	ActorID   uint64
	AccountID uint64
	Email     string
	IP        string
	UserAgent string
	Detail    string
}

func (l *Logger) RecordAccountChange(ctx context.Context, action string, record AccountChangeRecord) {
	if record.ActorID != 0 {
		detail := "actor=" + strconv.FormatUint(record.ActorID, 10)
		if record.Detail != "" {
			detail += " " + record.Detail
		}
		record.Detail = detail
	}
	l.Record(ctx, &model.AuditEvent{
		AccountID: record.AccountID,
		Email:     record.Email,
		Action:    action,
		Detail:    record.Detail,
		IP:        record.IP,
		UserAgent: record.UserAgent,
	})
}
