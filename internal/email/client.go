package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	inboxName     = "INBOX"
	logoutTimeout = 2 * time.Second
)

// Mailbox is one authenticated session on an account's inbox. Search, Fetch
// and MarkSeen must be called between Lock and the returned release.
type Mailbox interface {
	Lock() (release func(), err error)
	SearchUnseen() ([]uint32, error)
	Fetch(uid uint32) ([]byte, error)
	MarkSeen(uid uint32) error
	Close() error
}

// Connector opens a Mailbox for an account
type Connector func(ctx context.Context, account models.Account) (Mailbox, error)

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Endpoint    models.Endpoint
	DialTimeout time.Duration

	// TLSConfig overrides the default TLS settings, mainly for tests
	TLSConfig *tls.Config
}

// IMAPClient is an IMAP session for a single account
type IMAPClient struct {
	config ClientConfig
	logger *slog.Logger

	mu        sync.Mutex
	client    *client.Client
	connected bool
	closed    bool

	// held for a whole inbox pass
	session sync.Mutex
}

// NewIMAPConnector returns a Connector dialing real IMAP servers
func NewIMAPConnector(dialTimeout time.Duration, logger *slog.Logger) Connector {
	return func(ctx context.Context, account models.Account) (Mailbox, error) {
		c := NewIMAPClient(ClientConfig{
			Endpoint:    account.IMAP,
			DialTimeout: dialTimeout,
		}, logger.With("account", account.ID))

		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(cfg ClientConfig, logger *slog.Logger) *IMAPClient {
	return &IMAPClient{
		config: cfg,
		logger: logger.With("imap_user", cfg.Endpoint.User),
	}
}

// Connect dials and logs in. Login rejections are returned as *AuthError.
func (c *IMAPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStopped
	}
	if c.connected {
		return nil
	}

	ep := c.config.Endpoint
	c.logger.Info("connecting to IMAP server", "server", ep.Addr(), "tls", ep.Secure)

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: ep.Host}
	}

	dialer := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if ep.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", ep.Addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", ep.Addr())
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapClient.Timeout = timeout

	if !ep.Secure && !ep.Plaintext {
		ok, err := imapClient.SupportStartTLS()
		if err != nil {
			imapClient.Terminate()
			return fmt.Errorf("failed to read capabilities: %w", err)
		}
		if !ok {
			imapClient.Terminate()
			return ErrNoStartTLS
		}
		if err := imapClient.StartTLS(tlsConfig); err != nil {
			imapClient.Terminate()
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if err := imapClient.Login(ep.User, ep.Password); err != nil {
		imapClient.Terminate()
		if IsConnectionError(err) {
			return fmt.Errorf("failed to login: %w", err)
		}
		return &AuthError{Err: err}
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")

	return nil
}

// Lock takes the session lock and selects INBOX
func (c *IMAPClient) Lock() (func(), error) {
	c.session.Lock()

	cl, err := c.conn()
	if err != nil {
		c.session.Unlock()
		return nil, err
	}

	if _, err := cl.Select(inboxName, false); err != nil {
		c.session.Unlock()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	var once sync.Once
	return func() { once.Do(c.session.Unlock) }, nil
}

// SearchUnseen returns the UIDs of messages without the \Seen flag
func (c *IMAPClient) SearchUnseen() ([]uint32, error) {
	cl, err := c.conn()
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := cl.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

// Fetch returns the raw RFC 5322 message without setting \Seen
func (c *IMAPClient) Fetch(uid uint32) ([]byte, error) {
	cl, err := c.conn()
	if err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, items, messages)
	}()

	var (
		body    []byte
		readErr error
	)
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, readErr = io.ReadAll(r)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read body: %w", readErr)
	}
	if body == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}
	return body, nil
}

// MarkSeen adds the \Seen flag
func (c *IMAPClient) MarkSeen(uid uint32) error {
	cl, err := c.conn()
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := cl.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as seen: %w", err)
	}
	return nil
}

// Close logs out in the background, forcing the connection closed if the
// server does not answer in time. It is safe to call more than once.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	imapClient := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if imapClient == nil {
		return nil
	}

	go func() {
		done := make(chan struct{})
		go func() {
			imapClient.Logout()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(logoutTimeout):
			imapClient.Terminate()
		}
	}()
	return nil
}

// IsConnected returns whether the client is connected
func (c *IMAPClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *IMAPClient) conn() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}
