package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/snagbot/internal/database"
	"github.com/dukerupert/snagbot/internal/push"
	"github.com/dukerupert/snagbot/internal/store"
)

func setupPushHandler(t *testing.T) (*PushHandler, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ps := store.NewPushStore(db)
	svc := push.NewService("pub-key", "priv-key")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPushHandler(ps, svc, logger), ps
}

func TestSubscribe(t *testing.T) {
	h, ps := setupPushHandler(t)

	body := `{"endpoint": "https://push.example/a", "p256dh": "key", "auth": "auth", "device_name": "phone"}`
	req := httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	sub, err := ps.GetByEndpoint("https://push.example/a")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub == nil || sub.DeviceName != "phone" {
		t.Errorf("stored = %+v, want device name phone", sub)
	}
}

func TestSubscribeMissingFields(t *testing.T) {
	h, _ := setupPushHandler(t)

	req := httptest.NewRequest("POST", "/api/push/subscribe", strings.NewReader(`{"endpoint": "https://push.example/a"}`))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUnsubscribe(t *testing.T) {
	h, ps := setupPushHandler(t)
	if _, err := ps.CreateSubscription("https://push.example/a", "key", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/push/subscriptions", strings.NewReader(`{"endpoint": "https://push.example/a"}`))
	rec := httptest.NewRecorder()
	h.Unsubscribe(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	sub, _ := ps.GetByEndpoint("https://push.example/a")
	if sub != nil {
		t.Error("expected subscription deleted")
	}
}

func TestGetVAPIDKey(t *testing.T) {
	h, _ := setupPushHandler(t)

	req := httptest.NewRequest("GET", "/api/push/vapid-key", nil)
	rec := httptest.NewRecorder()
	h.GetVAPIDKey(rec, req)

	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["public_key"] != "pub-key" {
		t.Errorf("public_key = %q, want %q", got["public_key"], "pub-key")
	}
}
