package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loyalty-api/internal/events"
	"github.com/noah-isme/loyalty-api/internal/notify"
)

func TestSignatureAndHeaders(t *testing.T) {
	type recorded struct {
		req  *http.Request
		body []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{req: r, body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	hook := &notify.Webhook{
		URL:     srv.URL,
		Secret:  "secret",
		Client:  srv.Client(),
		Enabled: true,
	}
	event := events.DomainEvent{
		ID:          uuid.New(),
		Topic:       "loyalty.settled",
		AggregateID: uuid.New(),
		Payload:     []byte(`{"orderId":"123"}`),
		OccurredAt:  time.Now(),
	}

	require.NoError(t, hook.Notify(context.Background(), event))

	record := <-received
	req := record.req
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, event.ID.String(), req.Header.Get("X-Event-ID"))
	timestamp := req.Header.Get("X-Timestamp")
	require.NotEmpty(t, timestamp)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	require.NoError(t, err)
	require.Equal(t, notify.ComputeSignature("secret", ts, req.Header.Get("X-Event-ID"), record.body), req.Header.Get("X-Signature"))
}

func TestNotifyReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	hook := &notify.Webhook{URL: srv.URL, Secret: "secret", Client: srv.Client(), Enabled: true}
	err := hook.Notify(context.Background(), events.DomainEvent{
		ID:         uuid.New(),
		Topic:      "loyalty.settled",
		Payload:    []byte(`{}`),
		OccurredAt: time.Now(),
	})
	require.Error(t, err)
}

func TestNotifyDisabledIsNoOp(t *testing.T) {
	hook := &notify.Webhook{URL: "http://127.0.0.1:1", Secret: "secret", Enabled: false}
	require.NoError(t, hook.Notify(context.Background(), events.DomainEvent{ID: uuid.New(), Topic: "x"}))
}

func TestNotifyRejectsNonLocalHTTP(t *testing.T) {
	hook := &notify.Webhook{URL: "http://example.com/hook", Secret: "secret", Enabled: true}
	err := hook.Notify(context.Background(), events.DomainEvent{
		ID:         uuid.New(),
		Topic:      "loyalty.settled",
		Payload:    []byte(`{}`),
		OccurredAt: time.Now(),
	})
	require.Error(t, err)
}
