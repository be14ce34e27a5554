package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/emailchannel/pkg/models"
)

func testInbound() models.InboundContext {
	return Finalize(models.InboundMessage{
		AccountID: "work",
		From:      "jane@x.com",
		FromName:  "Jane",
		To:        "email:bot@example.com:jane@x.com",
		Subject:   "Project X",
		Body:      "hello",
		MessageID: "<orig@x.com>",
	}, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestFinalize(t *testing.T) {
	in := testInbound()
	assert.Equal(t, SurfaceEmail, in.Surface)
	assert.Equal(t, SurfaceEmail, in.Provider)
	assert.Equal(t, ChatDirect, in.ChatType)
	assert.Equal(t, "email:work:email:bot@example.com:jane@x.com", in.SessionKey)
	assert.False(t, in.ReceivedAt.IsZero())
}

func TestMulti(t *testing.T) {
	var calls []string
	m := Multi{
		Func(func(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error {
			calls = append(calls, "a")
			return errors.New("a failed")
		}),
		Func(func(ctx context.Context, in models.InboundContext, deliver DeliverFunc) error {
			calls = append(calls, "b")
			return deliver(ctx, models.ReplyPayload{Text: "from b"})
		}),
	}

	var delivered []string
	err := m.Dispatch(context.Background(), testInbound(), func(_ context.Context, p models.ReplyPayload) error {
		delivered = append(delivered, p.Text)
		return nil
	})

	assert.EqualError(t, err, "a failed")
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, []string{"from b"}, delivered)
}

func TestWebhook_DeliversReplies(t *testing.T) {
	var got models.InboundContext
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"replies":[{"text":"first"},{"text":"second","mediaUrl":"https://x.io/a.png"}]}`))
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithBearerToken("secret"))

	var delivered []models.ReplyPayload
	err := wh.Dispatch(context.Background(), testInbound(), func(_ context.Context, p models.ReplyPayload) error {
		delivered = append(delivered, p)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@x.com", got.From)
	assert.Equal(t, "<orig@x.com>", got.MessageID)
	require.Len(t, delivered, 2)
	assert.Equal(t, "first", delivered[0].Text)
	assert.Equal(t, "https://x.io/a.png", delivered[1].MediaURL)
}

func TestWebhook_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	called := false
	err := NewWebhook(srv.URL).Dispatch(context.Background(), testInbound(), func(context.Context, models.ReplyPayload) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Dispatch(context.Background(), testInbound(), func(context.Context, models.ReplyPayload) error {
		return nil
	})
	assert.ErrorContains(t, err, "502")
}

func TestWebhook_DeliveryErrorsJoined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"replies":[{"text":"a"},{"text":"b"}]}`))
	}))
	defer srv.Close()

	n := 0
	err := NewWebhook(srv.URL).Dispatch(context.Background(), testInbound(), func(context.Context, models.ReplyPayload) error {
		n++
		return errors.New("smtp down")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, n)
}
