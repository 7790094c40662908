// Package notify delivers verification and password-reset messages.
package notify

import (
	"context"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/logging"
)

// Notifier sends account emails. A returned error is reported by the caller
// and never aborts the operation that triggered the message.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, token, name string) error
	SendPasswordResetEmail(ctx context.Context, to, token, name string) error
}

// LogNotifier only logs. Raw tokens are written when exposeTokens is set,
// which lets a developer complete the flow without a mail server.
type LogNotifier struct {
	log          logging.Logger
	exposeTokens bool
}

func NewLogNotifier(log logging.Logger, exposeTokens bool) *LogNotifier {
	return &LogNotifier{log: log, exposeTokens: exposeTokens}
}

func (n *LogNotifier) SendVerificationEmail(ctx context.Context, to, token, name string) error {
	n.log.Info(ctx, "verification email", "to", to, "name", name, "token", n.token(token))
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, to, token, name string) error {
	n.log.Info(ctx, "password reset email", "to", to, "name", name, "token", n.token(token))
	return nil
}

func (n *LogNotifier) token(t string) string {
	if n.exposeTokens {
		return t
	}
	return common.MaskSecret(t, 8)
}
