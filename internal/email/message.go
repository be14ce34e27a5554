package email

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/emailchannel/internal/parser"
)

// Attachment is a file part of an inbound message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ParsedMessage is the part of an inbound email the processor needs
type ParsedMessage struct {
	FromAddress string
	FromName    string
	Subject     string
	MessageID   string // with angle brackets, empty if absent
	Date        time.Time
	Text        string
	HTML        string
	Attachments []Attachment

	// attachments dropped for exceeding the size limit
	Oversized []string
}

// ParseMessage reads an RFC 5322 message. HTML-only bodies are converted to
// text with htmlParser. Attachments above maxAttachmentSize bytes are not
// kept; a non-positive limit keeps none.
func ParseMessage(r io.Reader, htmlParser *parser.HTMLParser, maxAttachmentSize int64) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &ParsedMessage{}
	h := mr.Header

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromAddress = strings.ToLower(from[0].Address)
		msg.FromName = from[0].Name
	} else if raw := h.Get("From"); raw != "" {
		msg.FromAddress = parser.ExtractEmail(raw)
		msg.FromName = parser.ExtractName(raw)
	}
	if msg.FromAddress == "" {
		return nil, errors.New("message has no sender")
	}
	if msg.FromName == "" {
		msg.FromName = parser.ExtractName(msg.FromAddress)
	}

	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			switch {
			case ct == "" || strings.HasPrefix(ct, "text/plain"):
				if msg.Text == "" {
					msg.Text = string(body)
				}
			case strings.HasPrefix(ct, "text/html"):
				if msg.HTML == "" {
					msg.HTML = string(body)
				}
			}

		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			if maxAttachmentSize <= 0 {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentSize+1))
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment %q: %w", name, err)
			}
			if int64(len(data)) > maxAttachmentSize {
				msg.Oversized = append(msg.Oversized, name)
				continue
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    name,
				ContentType: ct,
				Data:        data,
			})
		}
	}

	if strings.TrimSpace(msg.Text) == "" && msg.HTML != "" && htmlParser != nil {
		text, err := htmlParser.Parse(msg.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML body: %w", err)
		}
		msg.Text = text
	}

	return msg, nil
}
