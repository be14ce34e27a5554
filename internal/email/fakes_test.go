package email

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mixelka/emailchannel/internal/transport"
	"github.com/mixelka/emailchannel/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawMessage(from, subject, messageID, body string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	b.WriteString("To: bot@work.com\r\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	if messageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	}
	b.WriteString("Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// fakeMailbox serves raw messages from memory
type fakeMailbox struct {
	mu        sync.Mutex
	messages  map[uint32][]byte
	seen      map[uint32]bool
	fetchErr  map[uint32]error
	searchErr error
	locked    bool
	locks     int
	closes    int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[uint32][]byte),
		seen:     make(map[uint32]bool),
		fetchErr: make(map[uint32]error),
	}
}

func (m *fakeMailbox) add(uid uint32, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[uid] = raw
}

func (m *fakeMailbox) Lock() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = true
	m.locks++
	return func() {
		m.mu.Lock()
		m.locked = false
		m.mu.Unlock()
	}, nil
}

func (m *fakeMailbox) SearchUnseen() ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var uids []uint32
	for uid := range m.messages {
		if !m.seen[uid] {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (m *fakeMailbox) Fetch(uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[uid]; err != nil {
		return nil, err
	}
	raw, ok := m.messages[uid]
	if !ok {
		return nil, fmt.Errorf("message %d not found", uid)
	}
	return raw, nil
}

func (m *fakeMailbox) MarkSeen(uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[uid] = true
	return nil
}

func (m *fakeMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMailbox) isSeen(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[uid]
}

func (m *fakeMailbox) isLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

func (m *fakeMailbox) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type sentMail struct {
	Endpoint models.Endpoint
	Message  transport.Message
}

// fakeSender records outbound messages
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, ep models.Endpoint, msg *transport.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMail{Endpoint: ep, Message: *msg})
	return fmt.Sprintf("<%d@work.com>", len(s.sent)), nil
}

func (s *fakeSender) all() []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMail(nil), s.sent...)
}

// fakeConnector hands out mailboxes or errors in order
type fakeConnector struct {
	mu      sync.Mutex
	results []connectResult
	calls   int
	called  chan struct{}
}

type connectResult struct {
	mb  Mailbox
	err error
}

func newFakeConnector(results ...connectResult) *fakeConnector {
	return &fakeConnector{results: results, called: make(chan struct{}, 16)}
}

func (c *fakeConnector) Connect(ctx context.Context, _ models.Account) (Mailbox, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	var res connectResult
	if i < len(c.results) {
		res = c.results[i]
	} else if len(c.results) > 0 {
		res = c.results[len(c.results)-1]
	}
	c.mu.Unlock()

	select {
	case c.called <- struct{}{}:
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res.mb, res.err
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeProcessor records inbox passes
type fakeProcessor struct {
	mu      sync.Mutex
	calls   []Mailbox
	results []error
	called  chan struct{}
}

func newFakeProcessor(results ...error) *fakeProcessor {
	return &fakeProcessor{results: results, called: make(chan struct{}, 64)}
}

func (f *fakeProcessor) Process(_ context.Context, mb Mailbox) (int, error) {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, mb)
	var err error
	if i < len(f.results) {
		err = f.results[i]
	}
	f.mu.Unlock()

	select {
	case f.called <- struct{}{}:
	default:
	}
	return 0, err
}

func (f *fakeProcessor) mailboxes() []Mailbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Mailbox(nil), f.calls...)
}

// sleepRecorder records backoff waits without sleeping
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
