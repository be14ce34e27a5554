// Package dispatch connects inbound email to whatever produces replies.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	SurfaceEmail = "email"
	ChatDirect   = "direct"
)

// DeliverFunc sends one reply chunk back to the sender
type DeliverFunc func(ctx context.Context, payload models.ReplyPayload) error

// Dispatcher turns an inbound message into zero or more replies, calling
// deliver once per reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error
}

// Func adapts a function to Dispatcher
type Func func(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error

func (f Func) Dispatch(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error {
	return f(ctx, in, deliver)
}

// Multi hands every message to each dispatcher in turn
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, in, deliver); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Finalize fills in the defaults of an inbound record
func Finalize(msg models.InboundMessage, now time.Time) models.InboundContext {
	if msg.Surface == "" {
		msg.Surface = SurfaceEmail
	}
	if msg.Provider == "" {
		msg.Provider = SurfaceEmail
	}
	if msg.ChatType == "" {
		msg.ChatType = ChatDirect
	}

	return models.InboundContext{
		InboundMessage: msg,
		SessionKey:     SessionKey(msg.AccountID, msg.To),
		ReceivedAt:     now,
	}
}

// SessionKey identifies the conversation session for a thread
func SessionKey(accountID, threadID string) string {
	return SurfaceEmail + ":" + accountID + ":" + threadID
}
