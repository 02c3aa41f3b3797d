// Package notifier pushes migration lifecycle events to an external webhook.
// Delivery is best effort: events are already durable in the database before
// a notification is attempted, and delivery failures are logged but never
// propagated into the pipeline.
package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, keyed
// with the shared webhook secret.
const SignatureHeader = "x-sheen-signature"

// Notifier delivers lifecycle events to interested consumers.
type Notifier interface {
	// Notify delivers an event. Implementations must not block the caller
	// on network I/O and must never return delivery errors to it.
	Notify(ctx context.Context, event *domain.EventRecord)
}

// Config holds webhook notifier configuration.
type Config struct {
	Enabled    bool
	WebhookURL string
	Secret     string
	Timeout    time.Duration
}

// Webhook is the HMAC-signed webhook implementation of Notifier.
type Webhook struct {
	client *resty.Client
	url    string
	secret string
}

// NewWebhook creates a notifier from configuration. A disabled or
// unconfigured notifier degrades to a no-op.
// Parameters:
//   - cfg: webhook settings.
// Returns:
//   - Notifier: webhook notifier, or a no-op when disabled.
func NewWebhook(cfg *Config) Notifier {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return Noop{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Webhook{
		client: client,
		url:    cfg.WebhookURL,
		secret: cfg.Secret,
	}
}

type webhookEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notify delivers the event in a detached goroutine. The caller's context is
// not used for the request so that a finishing phase cannot cancel delivery
// mid-flight.
func (w *Webhook) Notify(_ context.Context, event *domain.EventRecord) {
	envelope := webhookEnvelope{
		ID:        event.ID,
		Type:      string(event.Type),
		Payload:   json.RawMessage(event.Payload),
		CreatedAt: event.CreatedAt,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("Failed to encode webhook payload for event %s: %v", event.ID, err)
		return
	}

	go w.send(event.ID, body)
}

func (w *Webhook) send(eventID string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader(SignatureHeader, Sign(w.secret, body)).
		SetBody(body).
		Post(w.url)

	if err != nil {
		logger.Error("Webhook delivery failed for event %s: %v", eventID, err)
		return
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		logger.Error("Webhook delivery for event %s returned HTTP %d", eventID, resp.StatusCode())
	}
}

// Sign computes the hex HMAC-SHA256 signature for a webhook body.
// Parameters:
//   - secret: shared webhook secret.
//   - body: exact request body bytes.
// Returns:
//   - string: lowercase hex digest.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Noop discards all events.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, *domain.EventRecord) {}
