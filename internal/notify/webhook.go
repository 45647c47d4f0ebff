package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/loyalty-api/internal/events"
	"github.com/noah-isme/loyalty-api/internal/obs"
)

// Webhook delivers domain events to a configured endpoint, signing each
// request so the receiver can verify origin and freshness.
type Webhook struct {
	URL     string
	Secret  string
	Client  *http.Client
	Enabled bool
	Now     func() time.Time
}

// Notify implements events.Notifier. Delivery failures are returned so the
// caller can decide whether to log or retry.
func (w *Webhook) Notify(ctx context.Context, event events.DomainEvent) error {
	if w == nil || !w.Enabled || w.URL == "" {
		return nil
	}
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.topic", event.Topic),
		attribute.String("webhook.event_id", event.ID.String()),
	)

	status, err := w.deliver(ctx, event)
	if err == nil && status >= 200 && status < 300 {
		w.count("delivered")
		return nil
	}
	w.count("failed")
	if err != nil {
		span.RecordError(err)
		return err
	}
	return fmt.Errorf("webhook delivery to %s returned status %d", w.URL, status)
}

func (w *Webhook) deliver(ctx context.Context, event events.DomainEvent) (int, error) {
	if err := validateURL(w.URL); err != nil {
		return 0, err
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    event.ID.String(),
		Topic:      event.Topic,
		Data:       event.Payload,
		OccurredAt: event.OccurredAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	ts := now.Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "loyalty-api-webhooks/1.0")
	req.Header.Set("X-Event-ID", event.ID.String())
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(w.Secret, ts, event.ID.String(), body))

	client := w.Client
	if client == nil {
		client = HttpClient(5000, false)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (w *Webhook) count(result string) {
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HttpClient returns an HTTP client configured for webhook delivery.
func HttpClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
