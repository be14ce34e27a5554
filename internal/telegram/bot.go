// Package telegram relays inbound email into a Telegram chat and turns chat
// replies back into email.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/mixelka/emailchannel/internal/email"
	"github.com/mixelka/emailchannel/internal/formatter"
	appmodels "github.com/mixelka/emailchannel/pkg/models"
)

// ForwardStore remembers which chat message carries which email
type ForwardStore interface {
	CreateForwarded(ctx context.Context, msg *appmodels.ForwardedMessage) error
	GetForwardedByTelegramMsgID(ctx context.Context, chatID int64, tgMsgID int) (*appmodels.ForwardedMessage, error)
}

// Channel is the email side the relay talks to
type Channel interface {
	SendText(ctx context.Context, req email.SendRequest) (string, error)
	Snapshots() []appmodels.AccountStatus
}

// RelayDeps dependencies for creating a relay
type RelayDeps struct {
	Token     string
	ChatID    int64
	TopicID   int
	Store     ForwardStore
	Formatter *formatter.TelegramFormatter
	Logger    *slog.Logger

	// messages per second sent to the chat
	Rate float64

	// extra bot options, mainly for tests
	BotOptions []bot.Option
}

// Relay represents the Telegram side of the email channel
type Relay struct {
	bot       *bot.Bot
	chatID    int64
	topicID   int
	store     ForwardStore
	formatter *formatter.TelegramFormatter
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu      sync.RWMutex
	channel Channel
}

// NewRelay creates a new Telegram relay
func NewRelay(deps RelayDeps) (*Relay, error) {
	if deps.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if deps.Formatter == nil {
		deps.Formatter = formatter.NewTelegramFormatter()
	}
	limit := rate.Limit(deps.Rate)
	if deps.Rate <= 0 {
		limit = rate.Limit(1)
	}

	r := &Relay{
		chatID:    deps.ChatID,
		topicID:   deps.TopicID,
		store:     deps.Store,
		formatter: deps.Formatter,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    deps.Logger.With("component", "telegram_relay"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(r.defaultHandler),
	}
	opts = append(opts, deps.BotOptions...)

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, err
	}

	r.bot = tgBot
	r.registerHandlers()

	return r, nil
}

// SetChannel connects the relay to the email side
func (r *Relay) SetChannel(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = c
}

func (r *Relay) getChannel() Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// registerHandlers registers command handlers
func (r *Relay) registerHandlers() {
	r.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, r.handleStatus)
	r.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, r.handleHelp)
	r.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, r.handleHelp)
}

// Start polls for updates until ctx is done
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("starting telegram relay", "chat_id", r.chatID, "topic_id", r.topicID)
	r.bot.Start(ctx)
}

// sendMessage sends a message to the relay chat, optionally as a reply
func (r *Relay) sendMessage(ctx context.Context, text string, replyTo int) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    r.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}

	if r.topicID != 0 {
		params.MessageThreadID = r.topicID
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
	}

	return r.bot.SendMessage(ctx, params)
}
