package transport

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Message is an outbound email
type Message struct {
	FromName    string
	FromAddress string
	To          []string
	Subject     string
	Text        string

	// threading; ids with or without angle brackets
	InReplyTo  string
	References []string

	AttachmentPath string

	// filled by Compose when empty
	MessageID string
	Date      time.Time
}

var urlRegex = regexp.MustCompile(`https?://[^\s<]+`)

var paragraphRegex = regexp.MustCompile(`\n{2,}`)

// Compose renders msg as an RFC 5322 message with text and HTML
// alternatives. It assigns a Message-ID if msg has none.
func Compose(msg *Message) ([]byte, error) {
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID(msg.FromAddress)
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}

	var h mail.Header
	h.SetDate(msg.Date)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromAddress}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	h.SetMessageID(trimMsgID(msg.MessageID))

	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{trimMsgID(msg.InReplyTo)})
	}
	refs := make([]string, 0, len(msg.References)+1)
	for _, r := range msg.References {
		if r = trimMsgID(r); r != "" {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 && msg.InReplyTo != "" {
		refs = append(refs, trimMsgID(msg.InReplyTo))
	}
	if len(refs) > 0 {
		h.SetMsgIDList("References", refs)
	}

	var buf bytes.Buffer
	if msg.AttachmentPath == "" {
		w, err := mail.CreateInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("failed to create message writer: %w", err)
		}
		if err := writeAlternatives(w, msg.Text); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish message: %w", err)
		}
		return buf.Bytes(), nil
	}

	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	iw, err := w.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	if err := writeAlternatives(iw, msg.Text); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish inline part: %w", err)
	}

	if err := writeAttachment(w, msg.AttachmentPath); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// NewMessageID returns a unique id in the sender's domain, without brackets
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}

// TextToHTML renders plain text as a minimal HTML body
func TextToHTML(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "&#39;", "'")
	linked := urlRegex.ReplaceAllString(escaped, `<a href="$0">$0</a>`)

	var sb strings.Builder
	sb.WriteString(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; font-size: 14px; line-height: 1.5;">`)
	for _, p := range paragraphRegex.Split(linked, -1) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(p, "\n", "<br>"))
		sb.WriteString("</p>")
	}
	sb.WriteString("</div>")
	return sb.String()
}

type partCreator interface {
	CreatePart(h mail.InlineHeader) (io.WriteCloser, error)
}

func writeAlternatives(w partCreator, text string) error {
	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", text},
		{"text/html", TextToHTML(text)},
	}

	for _, p := range parts {
		var h mail.InlineHeader
		h.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		pw, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			pw.Close()
			return fmt.Errorf("failed to write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("failed to finish %s part: %w", p.contentType, err)
		}
	}
	return nil
}

func writeAttachment(w *mail.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var h mail.AttachmentHeader
	h.SetFilename(name)
	h.SetContentType(contentType, nil)

	aw, err := w.CreateAttachment(h)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := io.Copy(aw, f); err != nil {
		aw.Close()
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return aw.Close()
}

func trimMsgID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
