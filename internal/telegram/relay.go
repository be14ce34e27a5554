package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixelka/emailchannel/internal/database"
	"github.com/mixelka/emailchannel/internal/dispatch"
	appmodels "github.com/mixelka/emailchannel/pkg/models"
)

// Dispatch forwards an inbound email into the chat. Replies arrive later
// as chat messages, so deliver is not called here.
func (r *Relay) Dispatch(ctx context.Context, in appmodels.InboundContext, _ dispatch.DeliverFunc) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	text := r.formatter.FormatInbound(in)
	tgMsg, err := r.sendMessage(ctx, text, 0)
	if err != nil {
		return fmt.Errorf("failed to send to telegram: %w", err)
	}

	fwd := &appmodels.ForwardedMessage{
		AccountID:     in.AccountID,
		ThreadID:      in.To,
		Sender:        in.From,
		Subject:       in.Subject,
		MessageID:     in.MessageID,
		ChatID:        r.chatID,
		TopicID:       r.topicID,
		TelegramMsgID: tgMsg.ID,
	}
	if err := r.store.CreateForwarded(ctx, fwd); err != nil && !errors.Is(err, database.ErrAlreadyExists) {
		return fmt.Errorf("failed to save forwarded message: %w", err)
	}

	r.logger.Info("email relayed to telegram",
		"account", in.AccountID,
		"from", in.From,
		"telegram_msg_id", tgMsg.ID,
	)
	return nil
}
