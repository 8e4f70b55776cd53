// Package notify delivers codes and passwords to phone owners.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier sends one-off secrets to a phone number.
type Notifier interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
	SendPassword(ctx context.Context, phone, password string) error
}

// LogNotifier stands in for an SMS gateway. Secrets only appear at debug level.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, phone, code string) error {
	n.logger.Infow("verification code issued", "phone", phone)
	n.logger.Debugw("verification code", "phone", phone, "code", code)
	return nil
}

func (n *LogNotifier) SendPassword(_ context.Context, phone, password string) error {
	n.logger.Infow("password issued", "phone", phone)
	n.logger.Debugw("password", "phone", phone, "password", password)
	return nil
}
