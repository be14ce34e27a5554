package formatter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mixelka/emailchannel/pkg/models"
)

func inbound(body string) models.InboundContext {
	return models.InboundContext{
		InboundMessage: models.InboundMessage{
			AccountID: "work",
			From:      "jane@x.com",
			FromName:  "Jane <Doe>",
			Subject:   "Q3 & Q4",
			Body:      body,
		},
		ReceivedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestFormatInbound(t *testing.T) {
	f := NewTelegramFormatter()

	in := inbound("1 < 2")
	in.Attachments = []string{"/data/att/1700000000000_report.pdf"}
	text := f.FormatInbound(in)

	assert.Contains(t, text, "<b>From:</b> Jane &lt;Doe&gt; &lt;jane@x.com&gt;")
	assert.Contains(t, text, "<b>Subject:</b> Q3 &amp; Q4")
	assert.Contains(t, text, "<b>Date:</b> 01.05.2024 09:30")
	assert.Contains(t, text, "<code>1700000000000_report.pdf</code>")
	assert.Contains(t, text, "1 &lt; 2")
	assert.NotContains(t, text, "truncated")
}

func TestFormatInbound_Truncates(t *testing.T) {
	f := NewTelegramFormatter()

	text := f.FormatInbound(inbound(strings.Repeat("я", 5000)))
	assert.Contains(t, text, "(message truncated)")
	assert.Less(t, len([]rune(text)), 4100)
}

func TestFormatStatus(t *testing.T) {
	f := NewTelegramFormatter()

	assert.Equal(t, "No email accounts configured.", f.FormatStatus(nil))

	text := f.FormatStatus([]models.AccountStatus{
		{AccountID: "work", FromAddress: "bot@work.com", Enabled: true, Configured: true, State: "connected",
			LastInboundAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
		{AccountID: "old", Enabled: false, Configured: true, State: "disconnected"},
		{AccountID: "draft", Enabled: true, Configured: false, LastError: "bad <thing>"},
	})

	assert.Contains(t, text, "<b>work</b> (bot@work.com)")
	assert.Contains(t, text, "State: <code>connected</code>")
	assert.Contains(t, text, "Last inbound: 01.05.2024 09:30")
	assert.Contains(t, text, "State: <code>disabled</code>")
	assert.Contains(t, text, "State: <code>not configured</code>")
	assert.Contains(t, text, "bad &lt;thing&gt;")
}

func TestFormatSendResults(t *testing.T) {
	f := NewTelegramFormatter()

	assert.Equal(t, "Sent to <b>jane@x.com</b>", f.FormatSent("jane@x.com"))
	assert.Contains(t, f.FormatSendError("jane@x.com", errors.New("550 <rejected>")), "550 &lt;rejected&gt;")
}
