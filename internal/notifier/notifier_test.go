package notifier

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
)

func TestSign(t *testing.T) {
	// Stable vector: HMAC-SHA256("secret", "hello").
	got := Sign("secret", []byte("hello"))
	want := "88aab3ede8d3adf94d26ab90d3bafd4a2083070c3bcce9c014ee04a443847c0b"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestWebhookDeliversSignedEnvelope(t *testing.T) {
	type delivery struct {
		signature string
		body      []byte
	}
	received := make(chan delivery, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		received <- delivery{signature: r.Header.Get(SignatureHeader), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhook(&Config{
		Enabled:    true,
		WebhookURL: server.URL,
		Secret:     "shared-secret",
	})

	event, err := domain.NewEventRecord(domain.EventProgress, &domain.ProgressPayload{
		MigrationID:     "mig-1",
		Phase:           "shallow_analysis",
		ProgressPercent: 10,
		Message:         "Analyzing source site",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n.Notify(context.Background(), event)

	var got delivery
	select {
	case got = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never called")
	}

	// The signature must verify against the exact body bytes.
	if !hmac.Equal([]byte(got.signature), []byte(Sign("shared-secret", got.body))) {
		t.Error("signature does not verify against the delivered body")
	}

	var envelope struct {
		ID        string                 `json:"id"`
		Type      string                 `json:"type"`
		Payload   domain.ProgressPayload `json:"payload"`
		CreatedAt time.Time              `json:"created_at"`
	}
	if err := json.Unmarshal(got.body, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if envelope.ID != event.ID {
		t.Errorf("envelope id = %s, want %s", envelope.ID, event.ID)
	}
	if envelope.Type != string(domain.EventProgress) {
		t.Errorf("envelope type = %s, want %s", envelope.Type, domain.EventProgress)
	}
	if envelope.Payload.MigrationID != "mig-1" {
		t.Errorf("payload migration = %s, want mig-1", envelope.Payload.MigrationID)
	}
	if envelope.Payload.ProgressPercent != 10 {
		t.Errorf("payload progress = %d, want 10", envelope.Payload.ProgressPercent)
	}
}

func TestNewWebhookDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "disabled", cfg: Config{Enabled: false, WebhookURL: "https://hooks.example.com"}},
		{name: "no url", cfg: Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewWebhook(&tt.cfg)
			if _, ok := n.(Noop); !ok {
				t.Errorf("expected Noop, got %T", n)
			}
			// Must not panic or block.
			n.Notify(context.Background(), &domain.EventRecord{ID: "ev-1"})
		})
	}
}
