package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mixelka/emailchannel/pkg/models"
)

const defaultDialTimeout = 30 * time.Second

// ErrAuthUnsupported is returned when credentials are configured but the
// server does not advertise AUTH
var ErrAuthUnsupported = errors.New("server does not advertise AUTH")

type smtpConn struct {
	*smtp.Client
}

// Close ends the session politely, falling back to dropping the connection
func (c *smtpConn) Close() error {
	if err := c.Client.Quit(); err != nil {
		return c.Client.Close()
	}
	return nil
}

// NewSMTPDialer returns a Dialer that opens authenticated SMTP sessions.
// Endpoints with Secure set use implicit TLS. Plaintext endpoints skip TLS.
// All others must upgrade with STARTTLS or the dial fails.
func NewSMTPDialer(timeout time.Duration) Dialer {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	return func(ctx context.Context, ep models.Endpoint) (Conn, error) {
		netDialer := &net.Dialer{Timeout: timeout}
		tlsConfig := &tls.Config{ServerName: ep.Host}

		var (
			conn net.Conn
			err  error
		)
		if ep.Secure && !ep.Plaintext {
			d := &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
			conn, err = d.DialContext(ctx, "tcp", ep.Addr())
		} else {
			conn, err = netDialer.DialContext(ctx, "tcp", ep.Addr())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}

		var c *smtp.Client
		switch {
		case ep.Secure, ep.Plaintext:
			c = smtp.NewClient(conn)
		default:
			// fails when the server does not offer STARTTLS
			c, err = smtp.NewClientStartTLS(conn, tlsConfig)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}

		if ep.User != "" {
			if ok, _ := c.Extension("AUTH"); !ok {
				c.Close()
				return nil, fmt.Errorf("%s as %s: %w", ep.Addr(), ep.User, ErrAuthUnsupported)
			}
			if err := c.Auth(sasl.NewPlainClient("", ep.User, ep.Password)); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to authenticate: %w", err)
			}
		}

		return &smtpConn{Client: c}, nil
	}
}
