package mail

import (
	"github.com/quantalab/labauth/internal/render"
	"github.com/quantalab/labauth/params"
)

func SendPasswordResetLink(sender MailSender, toEmail string, resetLink string) error {
	body, err := render.RenderHTML("mail/reset-password", map[string]interface{}{
		"resetLink":     resetLink,
		"expireMinutes": int(params.ResetTokenExpiration.Minutes()),
	})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: "Reset your password",
		Body:    body,
		IsHTML:  true,
	})
}
