package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mixelka/emailchannel/pkg/models"
)

const maxWebhookResponse = 1 << 20

type webhookResponse struct {
	Replies []models.ReplyPayload `json:"replies"`
}

// WebhookOption configures a Webhook
type WebhookOption func(*Webhook)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithBearerToken sets the Authorization header of every request
func WithBearerToken(token string) WebhookOption {
	return func(w *Webhook) { w.token = token }
}

func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = logger.With("component", "webhook") }
}

// Webhook posts inbound messages as JSON and delivers the replies found in
// the response body.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a dispatcher for url
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default().With("component", "webhook"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) Dispatch(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode inbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return fmt.Errorf("failed to read webhook response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var out webhookResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode webhook response: %w", err)
	}

	var errs []error
	for i, reply := range out.Replies {
		if err := deliver(ctx, reply); err != nil {
			w.logger.Warn("failed to deliver reply", "index", i, "session", in.SessionKey, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
