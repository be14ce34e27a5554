package transport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readComposed(t *testing.T, data []byte) (*mail.Reader, map[string]string, []string) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(data))
	require.NoError(t, err)

	bodies := map[string]string{}
	var attachments []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			b, _ := io.ReadAll(part.Body)
			bodies[ct] = string(b)
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			attachments = append(attachments, name)
		}
	}
	return mr, bodies, attachments
}

func TestCompose_ThreadingHeaders(t *testing.T) {
	msg := &Message{
		FromName:    "OpenClaw",
		FromAddress: "bot@example.com",
		To:          []string{"jane@x.com"},
		Subject:     "Re: Project X",
		Text:        "Sounds good.\n\nSee https://example.com/p",
		InReplyTo:   "<orig-1@x.com>",
		Date:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := Compose(msg)
	require.NoError(t, err)
	require.NotEmpty(t, msg.MessageID)
	assert.True(t, strings.HasSuffix(msg.MessageID, "@example.com"))

	mr, bodies, attachments := readComposed(t, data)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Project X", subject)

	inReplyTo, err := mr.Header.MsgIDList("In-Reply-To")
	require.NoError(t, err)
	assert.Equal(t, []string{"orig-1@x.com"}, inReplyTo)

	refs, err := mr.Header.MsgIDList("References")
	require.NoError(t, err)
	assert.Equal(t, []string{"orig-1@x.com"}, refs)

	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, id)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "OpenClaw", from[0].Name)

	assert.Contains(t, bodies["text/plain"], "Sounds good.")
	assert.Contains(t, bodies["text/html"], `<a href="https://example.com/p">`)
	assert.Empty(t, attachments)
}

func TestCompose_WithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("numbers"), 0o644))

	data, err := Compose(&Message{
		FromAddress:    "bot@example.com",
		To:             []string{"jane@x.com"},
		Subject:        "Message",
		Text:           "see attached",
		AttachmentPath: path,
	})
	require.NoError(t, err)

	_, bodies, attachments := readComposed(t, data)
	assert.Equal(t, "see attached", bodies["text/plain"])
	assert.Equal(t, []string{"report.txt"}, attachments)
}

func TestCompose_MissingAttachment(t *testing.T) {
	_, err := Compose(&Message{
		FromAddress:    "bot@example.com",
		To:             []string{"jane@x.com"},
		AttachmentPath: filepath.Join(t.TempDir(), "missing.pdf"),
	})
	assert.Error(t, err)
}

func TestTextToHTML(t *testing.T) {
	out := TextToHTML("Hi <Bob> & \"co\"\nline two\n\nvisit https://a.io/x?y=1")

	assert.True(t, strings.HasPrefix(out, "<div"))
	assert.Contains(t, out, "<p>Hi &lt;Bob&gt; &amp; &#34;co&#34;<br>line two</p>")
	assert.Contains(t, out, `<p>visit <a href="https://a.io/x?y=1">https://a.io/x?y=1</a></p>`)
}

func TestNewMessageID(t *testing.T) {
	assert.True(t, strings.HasSuffix(NewMessageID("bot@example.com"), "@example.com"))
	assert.True(t, strings.HasSuffix(NewMessageID("nobody"), "@localhost"))
	assert.NotEqual(t, NewMessageID("a@b.c"), NewMessageID("a@b.c"))
}
