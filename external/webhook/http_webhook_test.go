package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxseedlab/koedriver/internal/webhook"
)

func testPayload() webhook.DisconnectPayload {
	return webhook.DisconnectPayload{
		GuildID:        "guild-1",
		ChannelID:      "vc-1",
		SessionID:      "session-1",
		Kind:           "runtime",
		Reason:         "ws_closed",
		DisconnectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSendDisconnect_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendDisconnect(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendDisconnect_Success(t *testing.T) {
	var got webhook.DisconnectPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendDisconnect(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := testPayload()
	if got.GuildID != want.GuildID || got.Reason != want.Reason || got.Kind != want.Kind || !got.DisconnectedAt.Equal(want.DisconnectedAt) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestSendDisconnect_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendDisconnect(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
