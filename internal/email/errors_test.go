package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &AuthError{Err: errors.New("NO bad password")}, true},
		{"wrapped typed", fmt.Errorf("connect: %w", &AuthError{Err: errors.New("x")}), true},
		{"gmail", errors.New("[AUTHENTICATIONFAILED] Invalid credentials (Failure)"), true},
		{"smtp 535", errors.New("535 5.7.8 Username and Password not accepted"), true},
		{"network", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not connected", fmt.Errorf("search: %w", ErrNotConnected), true},
		{"eof", fmt.Errorf("fetch: %w", io.EOF), true},
		{"closed", net.ErrClosed, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"timeout text", errors.New("i/o timeout"), true},
		{"auth wins", &AuthError{Err: errors.New("connection closed")}, false},
		{"canceled", context.Canceled, false},
		{"stopped", ErrStopped, false},
		{"parse", errors.New("malformed header"), false},
		{"truncated message", &MessageError{UID: 7, Err: fmt.Errorf("failed to read body: %w", io.ErrUnexpectedEOF)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}
