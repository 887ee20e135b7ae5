package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes messages to the log instead of sending them. Used when
// no mail provider is configured.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (n LogNotifier) Send(ctx context.Context, to string, subject string, body string) error {
	n.Logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"body":    body,
	}).Info("notification")
	return nil
}
