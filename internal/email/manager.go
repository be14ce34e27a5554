package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mixelka/emailchannel/internal/config"
	"github.com/mixelka/emailchannel/internal/conversation"
	"github.com/mixelka/emailchannel/internal/dispatch"
	"github.com/mixelka/emailchannel/internal/metrics"
	"github.com/mixelka/emailchannel/internal/parser"
	"github.com/mixelka/emailchannel/internal/transport"
	"github.com/mixelka/emailchannel/pkg/models"
)

const messageFallback = "Message"

// ErrAccountDisabled is returned when starting a disabled account
var ErrAccountDisabled = errors.New("account disabled")

// AccountResolver resolves configured accounts
type AccountResolver interface {
	ListAccountIDs() []string
	DefaultAccountID() string
	ResolveAccount(id string) (models.Account, error)
}

// SendRequest is an outbound message initiated by the host
type SendRequest struct {
	AccountID string // default account when empty
	To        string
	Text      string
	MediaURL  string
	FilePath  string

	// used when no conversation with To is known
	Subject   string
	InReplyTo string
}

// ManagerDeps dependencies for creating a manager
type ManagerDeps struct {
	Accounts      AccountResolver
	Conversations *conversation.Store
	Dispatcher    dispatch.Dispatcher
	Sender        Sender
	Connector     Connector
	Status        *StatusRegistry
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	// poller overrides, mainly for tests
	MaxAttempts int
	BackoffStep time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
}

// Manager runs one poller per account and sends outbound email
type Manager struct {
	deps       ManagerDeps
	htmlParser *parser.HTMLParser
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	pollers map[string]*Poller
}

// NewManager creates a new email manager
func NewManager(deps ManagerDeps) *Manager {
	if deps.Status == nil {
		deps.Status = NewStatusRegistry()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		deps:       deps,
		htmlParser: parser.NewHTMLParser(),
		logger:     deps.Logger.With("component", "email_manager"),
		now:        now,
		pollers:    make(map[string]*Poller),
	}
}

// ListAccountIDs returns the configured account ids
func (m *Manager) ListAccountIDs() []string {
	return m.deps.Accounts.ListAccountIDs()
}

// IsConfigured reports whether account id has everything needed to run
func (m *Manager) IsConfigured(id string) bool {
	acc, err := m.deps.Accounts.ResolveAccount(id)
	return err == nil && acc.Configured
}

// StartAccount starts polling account id. Starting a running account
// returns its existing poller.
func (m *Manager) StartAccount(ctx context.Context, id string) (*Poller, error) {
	acc, err := m.deps.Accounts.ResolveAccount(id)
	if err != nil {
		return nil, err
	}
	m.deps.Status.Update(id, func(s *models.AccountStatus) {
		s.Name = acc.Name
		s.Enabled = acc.Enabled
		s.Configured = acc.Configured
		s.FromAddress = acc.FromAddress
	})
	if !acc.Configured {
		return nil, fmt.Errorf("%w: %s", config.ErrNotConfigured, id)
	}
	if !acc.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrAccountDisabled, id)
	}

	p := NewPoller(PollerConfig{
		Account:     acc,
		Connect:     m.deps.Connector,
		Processor:   m.newProcessor(acc),
		Status:      m.deps.Status,
		Metrics:     m.deps.Metrics,
		Logger:      m.deps.Logger,
		MaxAttempts: m.deps.MaxAttempts,
		BackoffStep: m.deps.BackoffStep,
		Sleep:       m.deps.Sleep,
		Now:         m.deps.Now,
	})

	m.mu.Lock()
	if existing, ok := m.pollers[id]; ok {
		m.mu.Unlock()
		p.cancel()
		return existing, nil
	}
	m.pollers[id] = p
	m.mu.Unlock()

	if err := p.Start(ctx); err != nil {
		m.mu.Lock()
		if m.pollers[id] == p {
			delete(m.pollers, id)
		}
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Info("started email account", "account", id, "from", acc.FromAddress, "interval", acc.PollInterval)
	return p, nil
}

// StartAll starts every enabled and configured account concurrently
func (m *Manager) StartAll(ctx context.Context) int {
	ids := m.ListAccountIDs()
	m.logger.Info("starting email accounts", "count", len(ids))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := m.StartAccount(ctx, id); err != nil {
				if errors.Is(err, config.ErrNotConfigured) || errors.Is(err, ErrAccountDisabled) {
					m.logger.Info("skipping account", "account", id, "reason", err)
					return
				}
				m.logger.Error("failed to start account", "account", id, "error", err)
				return
			}
			mu.Lock()
			started++
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	m.logger.Info("finished starting email accounts", "started", started)
	return started
}

// StopAccount stops and removes the poller of account id
func (m *Manager) StopAccount(id string) {
	m.mu.Lock()
	p, ok := m.pollers[id]
	delete(m.pollers, id)
	m.mu.Unlock()

	if ok {
		p.Stop()
		m.logger.Info("stopped email account", "account", id)
	}
}

// StopAll stops all pollers
func (m *Manager) StopAll() {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[string]*Poller)
	m.mu.Unlock()

	m.logger.Info("stopping all email accounts", "count", len(pollers))
	for _, p := range pollers {
		p.Stop()
	}
}

// Poller returns the running poller of account id
func (m *Manager) Poller(id string) (*Poller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pollers[id]
	return p, ok
}

// SendText sends a message to req.To, threading it onto the known
// conversation with that address when there is one.
func (m *Manager) SendText(ctx context.Context, req SendRequest) (string, error) {
	id := req.AccountID
	if id == "" {
		id = m.deps.Accounts.DefaultAccountID()
	}
	acc, err := m.deps.Accounts.ResolveAccount(id)
	if err != nil {
		return "", err
	}
	if !acc.Configured {
		return "", fmt.Errorf("%w: %s", config.ErrNotConfigured, id)
	}

	to := parser.ExtractEmail(req.To)
	if to == "" {
		return "", errors.New("recipient is required")
	}
	text := withMediaURL(req.Text, req.MediaURL)
	if strings.TrimSpace(text) == "" && req.FilePath == "" {
		return "", errors.New("message is empty")
	}

	msg := &transport.Message{
		FromName:       acc.FromName,
		FromAddress:    acc.FromAddress,
		To:             []string{to},
		Subject:        messageFallback,
		Text:           text,
		AttachmentPath: req.FilePath,
	}
	if req.Subject != "" {
		msg.Subject = parser.ReplySubject(req.Subject, messageFallback)
		msg.InReplyTo = req.InReplyTo
	}
	if conv, ok := m.deps.Conversations.Get(parser.ThreadID(to, acc.FromAddress)); ok {
		msg.Subject = parser.ReplySubject(conv.Subject, messageFallback)
		msg.InReplyTo = conv.LastMessageID
	}

	messageID, err := m.deps.Sender.Send(ctx, acc.SMTP, msg)
	if err != nil {
		m.deps.Metrics.Outbound(id, metrics.OutboundFailed)
		return "", err
	}
	m.deps.Metrics.Outbound(id, metrics.OutboundSent)

	now := m.now()
	m.deps.Status.Update(id, func(s *models.AccountStatus) { s.LastOutboundAt = now })
	m.logger.Info("sent email", "account", id, "to", to, "subject", msg.Subject)
	return messageID, nil
}

// Snapshot builds the status of account id
func (m *Manager) Snapshot(id string) models.AccountStatus {
	s, ok := m.deps.Status.Status(id)
	if !ok {
		s = models.AccountStatus{AccountID: id, State: string(StateDisconnected)}
	}

	if acc, err := m.deps.Accounts.ResolveAccount(id); err == nil {
		s.Name = acc.Name
		s.Enabled = acc.Enabled
		s.Configured = acc.Configured
		s.FromAddress = acc.FromAddress
	}
	return s
}

// Snapshots returns the status of every configured account
func (m *Manager) Snapshots() []models.AccountStatus {
	ids := m.ListAccountIDs()
	out := make([]models.AccountStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Snapshot(id))
	}
	return out
}

func (m *Manager) newProcessor(acc models.Account) *Processor {
	return NewProcessor(ProcessorDeps{
		Account:       acc,
		Conversations: m.deps.Conversations,
		Dispatcher:    m.deps.Dispatcher,
		Sender:        m.deps.Sender,
		Status:        m.deps.Status,
		HTMLParser:    m.htmlParser,
		Metrics:       m.deps.Metrics,
		Logger:        m.deps.Logger,
		Now:           m.deps.Now,
	})
}
