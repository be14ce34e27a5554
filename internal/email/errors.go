package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrNotConnected is returned by mailbox operations without a live session
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is returned when the poller was stopped mid-operation
	ErrStopped = errors.New("poller stopped")

	// ErrNoStartTLS is returned when a non-TLS endpoint cannot be upgraded
	ErrNoStartTLS = errors.New("server does not offer STARTTLS")
)

// AuthError marks a credential rejection by the mail server. It is never
// retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// MessageError is a failure confined to one message, such as a body that
// does not parse. It never ends an inbox pass.
type MessageError struct {
	UID uint32
	Err error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %d: %v", e.UID, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

var authFragments = []string{
	"authenticationfailed",
	"authentication failed",
	"invalid credentials",
	"login failed",
	"auth failed",
	"[auth]",
	"username and password not accepted",
	"535 ",
}

var connectionFragments = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"use of closed network connection",
	"connect",
	"socket",
	"eof",
}

// IsAuthError reports whether err is a credential rejection
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, f := range authFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err means the session is gone and a
// reconnect is needed.
func IsConnectionError(err error) bool {
	if err == nil || IsAuthError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStopped) {
		return false
	}
	var msgErr *MessageError
	if errors.As(err, &msgErr) {
		return false
	}

	switch {
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, f := range connectionFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
