package formatter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mixelka/emailchannel/pkg/models"
)

const dateLayout = "02.01.2006 15:04"

// TelegramFormatter formats emails for Telegram
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatInbound formats an inbound email for a chat
func (f *TelegramFormatter) FormatInbound(in models.InboundContext) string {
	var sb strings.Builder

	from := f.escapeHTML(in.From)
	if in.FromName != "" && in.FromName != in.From {
		from = fmt.Sprintf("%s &lt;%s&gt;", f.escapeHTML(in.FromName), f.escapeHTML(in.From))
	}

	sb.WriteString(fmt.Sprintf("<b>From:</b> %s\n", from))
	sb.WriteString(fmt.Sprintf("<b>Account:</b> %s\n", f.escapeHTML(in.AccountID)))
	sb.WriteString(fmt.Sprintf("<b>Subject:</b> %s\n", f.escapeHTML(in.Subject)))
	sb.WriteString(fmt.Sprintf("<b>Date:</b> %s\n", in.ReceivedAt.Format(dateLayout)))

	if len(in.Attachments) > 0 {
		names := make([]string, 0, len(in.Attachments))
		for _, p := range in.Attachments {
			names = append(names, "<code>"+f.escapeHTML(filepath.Base(p))+"</code>")
		}
		sb.WriteString(fmt.Sprintf("<b>Attachments:</b> %s\n", strings.Join(names, ", ")))
	}
	sb.WriteString("\n")

	body := f.truncate(in.Body, f.maxLength-sb.Len()-50)
	sb.WriteString(f.escapeHTML(body))

	if len([]rune(in.Body)) > len([]rune(body)) {
		sb.WriteString("\n\n<i>... (message truncated)</i>")
	}
	sb.WriteString("\n\n<i>Reply to this message to answer by email.</i>")

	return sb.String()
}

// FormatStatus formats account snapshots as a status report
func (f *TelegramFormatter) FormatStatus(statuses []models.AccountStatus) string {
	if len(statuses) == 0 {
		return "No email accounts configured."
	}

	var sb strings.Builder
	sb.WriteString("<b>Email accounts:</b>\n")

	for _, s := range statuses {
		state := s.State
		switch {
		case !s.Configured:
			state = "not configured"
		case !s.Enabled:
			state = "disabled"
		case state == "":
			state = "disconnected"
		}

		sb.WriteString(fmt.Sprintf("\n<b>%s</b>", f.escapeHTML(s.AccountID)))
		if s.FromAddress != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", f.escapeHTML(s.FromAddress)))
		}
		sb.WriteString(fmt.Sprintf("\nState: <code>%s</code>\n", f.escapeHTML(state)))

		if !s.LastInboundAt.IsZero() {
			sb.WriteString(fmt.Sprintf("Last inbound: %s\n", formatTime(s.LastInboundAt)))
		}
		if !s.LastOutboundAt.IsZero() {
			sb.WriteString(fmt.Sprintf("Last outbound: %s\n", formatTime(s.LastOutboundAt)))
		}
		if s.LastError != "" {
			sb.WriteString(fmt.Sprintf("Last error: <code>%s</code>\n", f.escapeHTML(f.truncate(s.LastError, 200))))
		}
	}

	return sb.String()
}

// FormatSent confirms an email sent from the chat
func (f *TelegramFormatter) FormatSent(to string) string {
	return fmt.Sprintf("Sent to <b>%s</b>", f.escapeHTML(to))
}

// FormatSendError reports a failed send
func (f *TelegramFormatter) FormatSendError(to string, err error) string {
	return fmt.Sprintf("Failed to send to <b>%s</b>:\n<code>%s</code>", f.escapeHTML(to), f.escapeHTML(err.Error()))
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func (f *TelegramFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

func formatTime(t time.Time) string {
	return t.Format(dateLayout)
}
