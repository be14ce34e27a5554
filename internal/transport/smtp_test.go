package transport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/emailchannel/pkg/models"
)

type receivedMail struct {
	from string
	to   []string
	data string
}

type testBackend struct {
	mu       sync.Mutex
	sessions int
	mails    []receivedMail
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return &testSession{backend: b}, nil
}

func (b *testBackend) snapshot() (int, []receivedMail) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions, append([]receivedMail(nil), b.mails...)
}

type testSession struct {
	backend *testBackend
	cur     receivedMail
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(b)
	s.backend.mu.Lock()
	s.backend.mails = append(s.backend.mails, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.cur = receivedMail{}
}

func (s *testSession) Logout() error {
	return nil
}

func startSMTPServer(t *testing.T) (*testBackend, models.Endpoint) {
	t.Helper()

	be := &testBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return be, models.Endpoint{Host: host, Port: port, Plaintext: true}
}

func TestMailer_SendsOverReusedSession(t *testing.T) {
	be, ep := startSMTPServer(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := NewPool(NewSMTPDialer(5*time.Second), WithReapInterval(0), WithPoolLogger(logger))
	defer pool.Close()
	mailer := NewMailer(pool, logger)

	ctx := context.Background()
	for _, subject := range []string{"Re: Project X", "Re: Project X again"} {
		id, err := mailer.Send(ctx, ep, &Message{
			FromName:    "OpenClaw",
			FromAddress: "bot@example.com",
			To:          []string{"jane@x.com"},
			Subject:     subject,
			Text:        "reply body",
			InReplyTo:   "<orig@x.com>",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	sessions, mails := be.snapshot()
	assert.Equal(t, 1, sessions, "second send should reuse the pooled session")
	require.Len(t, mails, 2)
	assert.Equal(t, "bot@example.com", mails[0].from)
	assert.Equal(t, []string{"jane@x.com"}, mails[0].to)
	assert.Contains(t, mails[0].data, "In-Reply-To: <orig@x.com>")
	assert.Contains(t, mails[1].data, "Subject: Re: Project X again")
}

func TestSMTPDialer_RequiresStartTLS(t *testing.T) {
	be, ep := startSMTPServer(t)
	ep.Plaintext = false
	ep.User = "bot@example.com"
	ep.Password = "secret"

	_, err := NewSMTPDialer(5*time.Second)(context.Background(), ep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")

	_, mails := be.snapshot()
	assert.Empty(t, mails)
}

func TestSMTPDialer_CredentialsNeedAuth(t *testing.T) {
	_, ep := startSMTPServer(t)
	ep.User = "bot@example.com"
	ep.Password = "secret"

	_, err := NewSMTPDialer(5*time.Second)(context.Background(), ep)
	require.ErrorIs(t, err, ErrAuthUnsupported)
}

func TestSMTPDialer_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	dial := NewSMTPDialer(time.Second)
	_, err = dial(context.Background(), models.Endpoint{Host: "127.0.0.1", Port: addr.Port})
	assert.Error(t, err)
}
