package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/emailchannel/internal/database"
	"github.com/mixelka/emailchannel/internal/email"
)

const helpText = `<b>Email channel</b>

Incoming email is posted here. Reply to a posted email to answer the sender by email.

<b>Commands:</b>
/status - show account status
/help - show this message`

// defaultHandler turns replies to relayed emails into outbound email
func (r *Relay) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID != r.chatID {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.HasPrefix(text, "/") {
		r.logger.Debug("unknown command", "text", text)
		return
	}
	if msg.ReplyToMessage == nil || strings.TrimSpace(text) == "" {
		return
	}

	fwd, err := r.store.GetForwardedByTelegramMsgID(ctx, msg.Chat.ID, msg.ReplyToMessage.ID)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		r.logger.Error("failed to look up forwarded message", "error", err)
		return
	}

	channel := r.getChannel()
	if channel == nil {
		r.logger.Warn("reply received before email channel was attached")
		return
	}

	_, err = channel.SendText(ctx, email.SendRequest{
		AccountID: fwd.AccountID,
		To:        fwd.Sender,
		Text:      text,
		Subject:   fwd.Subject,
		InReplyTo: fwd.MessageID,
	})
	if err != nil {
		r.logger.Error("failed to send email reply", "account", fwd.AccountID, "to", fwd.Sender, "error", err)
		r.sendMessage(ctx, r.formatter.FormatSendError(fwd.Sender, err), msg.ID)
		return
	}

	r.logger.Info("chat reply sent by email", "account", fwd.AccountID, "to", fwd.Sender)
	r.sendMessage(ctx, r.formatter.FormatSent(fwd.Sender), msg.ID)
}

// handleStatus handles /status command
func (r *Relay) handleStatus(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID != r.chatID {
		return
	}

	channel := r.getChannel()
	if channel == nil {
		r.sendMessage(ctx, "Email channel is not running.", msg.ID)
		return
	}
	r.sendMessage(ctx, r.formatter.FormatStatus(channel.Snapshots()), msg.ID)
}

// handleHelp handles /help command
func (r *Relay) handleHelp(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID != r.chatID {
		return
	}
	r.sendMessage(ctx, helpText, msg.ID)
}
