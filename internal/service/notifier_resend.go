package service

import (
	"context"
	"errors"
	"strings"

	"github.com/resend/resend-go/v2"
)

var ErrNotifierNotConfigured = errors.New("email notifier not configured")

// resendEmails is the part of the Resend client used here.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type ResendNotifier struct {
	emails resendEmails
	from   string
}

func NewResendNotifier(apiKey string, from string) *ResendNotifier {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return &ResendNotifier{}
	}
	client := resend.NewClient(apiKey)
	return &ResendNotifier{emails: client.Emails, from: from}
}

func (n *ResendNotifier) Send(ctx context.Context, to string, subject string, body string) error {
	if n.emails == nil {
		return ErrNotifierNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	return err
}
