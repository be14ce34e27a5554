package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/emailchannel/internal/allowlist"
	"github.com/mixelka/emailchannel/internal/conversation"
	"github.com/mixelka/emailchannel/internal/dispatch"
	"github.com/mixelka/emailchannel/internal/metrics"
	"github.com/mixelka/emailchannel/internal/parser"
	"github.com/mixelka/emailchannel/internal/transport"
	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	noSubject     = "(no subject)"
	replyFallback = "Reply"
)

// Sender delivers an outbound email and returns its Message-ID
type Sender interface {
	Send(ctx context.Context, ep models.Endpoint, msg *transport.Message) (string, error)
}

// ProcessorDeps dependencies for creating a processor
type ProcessorDeps struct {
	Account       models.Account
	Conversations *conversation.Store
	Dispatcher    dispatch.Dispatcher
	Sender        Sender
	Status        StatusSink
	HTMLParser    *parser.HTMLParser
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Processor performs inbox passes for one account
type Processor struct {
	account       models.Account
	conversations *conversation.Store
	dispatcher    dispatch.Dispatcher
	sender        Sender
	status        StatusSink
	htmlParser    *parser.HTMLParser
	attachments   *AttachmentStore
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewProcessor creates a processor
func NewProcessor(deps ProcessorDeps) *Processor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	htmlParser := deps.HTMLParser
	if htmlParser == nil {
		htmlParser = parser.NewHTMLParser()
	}

	p := &Processor{
		account:       deps.Account,
		conversations: deps.Conversations,
		dispatcher:    deps.Dispatcher,
		sender:        deps.Sender,
		status:        deps.Status,
		htmlParser:    htmlParser,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With("component", "inbox_processor", "account", deps.Account.ID),
		now:           now,
	}
	if deps.Account.AttachmentDir != "" {
		p.attachments = NewAttachmentStore(deps.Account.AttachmentDir, now)
	}
	return p
}

// Process runs one pass over the unseen messages of mb and returns how many
// were handed to the dispatcher. A failing message is logged and skipped; a
// lost connection ends the pass with an error.
func (p *Processor) Process(ctx context.Context, mb Mailbox) (int, error) {
	release, err := mb.Lock()
	if err != nil {
		return 0, err
	}
	defer release()

	uids, err := mb.SearchUnseen()
	if err != nil {
		return 0, err
	}
	if len(uids) > 0 {
		p.logger.Debug("found unseen messages", "count", len(uids))
	}

	dispatched := 0
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}

		ok, err := p.handle(ctx, mb, uid)
		if err != nil {
			if IsConnectionError(err) {
				return dispatched, err
			}
			p.logger.Warn("failed to process message", "uid", uid, "error", err)
			p.metrics.Inbound(p.account.ID, metrics.InboundFailed)
			continue
		}
		if ok {
			dispatched++
		}
	}
	return dispatched, nil
}

// handle processes one message. It reports whether the message reached the
// dispatcher.
func (p *Processor) handle(ctx context.Context, mb Mailbox, uid uint32) (dispatched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			dispatched, err = false, &MessageError{UID: uid, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raw, err := mb.Fetch(uid)
	if err != nil {
		return false, err
	}

	var attachmentLimit int64
	if p.attachments != nil {
		attachmentLimit = p.account.MaxAttachmentSize
	}
	msg, err := ParseMessage(bytes.NewReader(raw), p.htmlParser, attachmentLimit)
	if err != nil {
		return false, &MessageError{UID: uid, Err: fmt.Errorf("failed to parse message: %w", err)}
	}

	sender := msg.FromAddress
	if p.account.DMPolicy != models.DMPolicyOpen && !allowlist.Matches(sender, p.account.AllowFrom) {
		p.logger.Debug("sender not in allowlist", "uid", uid, "from", sender)
		p.metrics.Inbound(p.account.ID, metrics.InboundRejected)
		if err := mb.MarkSeen(uid); err != nil {
			return false, err
		}
		return false, nil
	}

	now := p.now()
	threadID := parser.ThreadID(sender, p.account.FromAddress)

	messageID := msg.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("<%d@local>", now.UnixNano())
	}
	subject := msg.Subject
	if subject == "" {
		subject = noSubject
	}

	body := parser.StripQuotedReplies(msg.Text)
	saved := p.saveAttachments(uid, msg)
	if len(saved) > 0 {
		body += fmt.Sprintf("\n\n[Attachments saved: %s]", strings.Join(saved, ", "))
	}

	p.conversations.Set(threadID, conversation.Update{
		LastMessageID: messageID,
		Subject:       subject,
	})

	p.logger.Info("received email", "uid", uid, "from", sender, "subject", subject)

	in := dispatch.Finalize(models.InboundMessage{
		AccountID:   p.account.ID,
		From:        sender,
		FromName:    msg.FromName,
		To:          threadID,
		Subject:     subject,
		Body:        body,
		RawBody:     msg.Text,
		MessageID:   messageID,
		Attachments: saved,
	}, now)

	deliver := func(ctx context.Context, payload models.ReplyPayload) error {
		return p.deliver(ctx, sender, subject, messageID, payload)
	}
	if err := p.dispatcher.Dispatch(ctx, in, deliver); err != nil {
		p.logger.Error("dispatch failed", "uid", uid, "from", sender, "error", err)
		p.metrics.Inbound(p.account.ID, metrics.InboundFailed)
	} else {
		p.metrics.Inbound(p.account.ID, metrics.InboundDispatched)
	}

	if err := mb.MarkSeen(uid); err != nil {
		return true, err
	}
	return true, nil
}

// deliver sends one reply chunk to the original sender
func (p *Processor) deliver(ctx context.Context, to, subject, inReplyTo string, payload models.ReplyPayload) error {
	text := withMediaURL(payload.Text, payload.MediaURL)
	if strings.TrimSpace(text) == "" && payload.FilePath == "" {
		return nil
	}

	_, err := p.sender.Send(ctx, p.account.SMTP, &transport.Message{
		FromName:       p.account.FromName,
		FromAddress:    p.account.FromAddress,
		To:             []string{to},
		Subject:        parser.ReplySubject(subject, replyFallback),
		Text:           text,
		InReplyTo:      inReplyTo,
		AttachmentPath: payload.FilePath,
	})
	if err != nil {
		p.metrics.Outbound(p.account.ID, metrics.OutboundFailed)
		return fmt.Errorf("failed to send reply to %s: %w", to, err)
	}

	p.metrics.Outbound(p.account.ID, metrics.OutboundSent)
	if p.status != nil {
		now := p.now()
		p.status.Update(p.account.ID, func(s *models.AccountStatus) { s.LastOutboundAt = now })
	}
	return nil
}

func (p *Processor) saveAttachments(uid uint32, msg *ParsedMessage) []string {
	for _, name := range msg.Oversized {
		p.logger.Warn("attachment exceeds size limit", "uid", uid, "file", name, "limit", p.account.MaxAttachmentSize)
	}
	if p.attachments == nil || len(msg.Attachments) == 0 {
		return nil
	}

	saved := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		path, err := p.attachments.Save(att)
		if err != nil {
			p.logger.Warn("failed to save attachment", "uid", uid, "file", att.Filename, "error", err)
			continue
		}
		saved = append(saved, path)
	}
	return saved
}

func withMediaURL(text, mediaURL string) string {
	if mediaURL == "" {
		return text
	}
	if strings.TrimSpace(text) == "" {
		return "Attachment: " + mediaURL
	}
	return text + "\n\nAttachment: " + mediaURL
}
