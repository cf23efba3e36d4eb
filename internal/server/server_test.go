package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/snagbot/internal/database"
	"github.com/dukerupert/snagbot/internal/scheduler"
	ws "github.com/dukerupert/snagbot/internal/websocket"
)

type emptyStatus struct{}

func (emptyStatus) Snapshot() []scheduler.CycleStatus { return nil }

func setupServer(t *testing.T, token string) http.Handler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, emptyStatus{}, ws.NewHub(logger), nil, Config{Token: token}, logger)
	return srv.Router()
}

func TestHealthIsPublic(t *testing.T) {
	router := setupServer(t, "secret")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router := setupServer(t, "secret")

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAPIWithToken(t *testing.T) {
	router := setupServer(t, "secret")

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestPushRoutesAbsentWithoutService(t *testing.T) {
	router := setupServer(t, "")

	req := httptest.NewRequest("GET", "/api/push/vapid-key", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
