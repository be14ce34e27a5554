package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixelka/emailchannel/pkg/models"
)

// Mailer composes messages and delivers them through a Pool
type Mailer struct {
	pool   *Pool
	logger *slog.Logger
}

// NewMailer creates a mailer on top of pool
func NewMailer(pool *Pool, logger *slog.Logger) *Mailer {
	return &Mailer{
		pool:   pool,
		logger: logger.With("component", "mailer"),
	}
}

// Send delivers msg through the SMTP endpoint ep and returns its Message-ID
func (m *Mailer) Send(ctx context.Context, ep models.Endpoint, msg *Message) (string, error) {
	data, err := Compose(msg)
	if err != nil {
		return "", fmt.Errorf("failed to compose message: %w", err)
	}

	if err := m.pool.Send(ctx, ep, msg.FromAddress, msg.To, data); err != nil {
		return "", err
	}

	m.logger.Debug("mail sent", "to", msg.To, "subject", msg.Subject, "message_id", msg.MessageID)
	return msg.MessageID, nil
}
