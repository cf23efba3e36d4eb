package push

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/snagbot/internal/database"
	"github.com/dukerupert/snagbot/internal/model"
	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	// Generate again — should be different
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

type fakeSender struct {
	sent    []Payload
	targets []string
	errFor  map[string]error // endpoint -> error
}

func (f *fakeSender) Send(sub *model.PushSubscription, payload Payload) error {
	if err, ok := f.errFor[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, payload)
	f.targets = append(f.targets, sub.Endpoint)
	return nil
}

func setupNotifier(t *testing.T) (*Notifier, *fakeSender, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	subs := store.NewPushStore(db)
	fake := &fakeSender{errFor: make(map[string]error)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Notifier{service: fake, subs: subs, logger: logger}, fake, subs
}

func successEvent() scheduler.Event {
	return scheduler.Event{
		Account: &model.Account{ChatID: 42, LoginID: "ug-1"},
		Kind:    ugphone.KindSuccess,
		OrderID: "ORD-9",
		Attempt: 4,
		At:      time.Now(),
	}
}

func TestNotifyFansOutToAllSubscriptions(t *testing.T) {
	n, fake, subs := setupNotifier(t)
	for _, ep := range []string{"https://push.example/a", "https://push.example/b"} {
		if _, err := subs.CreateSubscription(ep, "p256dh", "auth", "phone"); err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
	}

	n.Notify(successEvent())

	if len(fake.sent) != 2 {
		t.Fatalf("sent count = %d, want 2", len(fake.sent))
	}
	if fake.sent[0].Title != "Trial purchased" {
		t.Errorf("title = %q, want %q", fake.sent[0].Title, "Trial purchased")
	}
}

func TestNotifySkipsProgressOutcomes(t *testing.T) {
	n, fake, subs := setupNotifier(t)
	if _, err := subs.CreateSubscription("https://push.example/a", "p256dh", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	ev := successEvent()
	ev.Kind = ugphone.KindNotYetAvailable
	ev.OrderID = ""
	n.Notify(ev)

	if len(fake.sent) != 0 {
		t.Errorf("sent count = %d, want 0 for a progress outcome", len(fake.sent))
	}
}

func TestNotifyPrunesExpiredSubscriptions(t *testing.T) {
	n, fake, subs := setupNotifier(t)
	if _, err := subs.CreateSubscription("https://push.example/dead", "p256dh", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if _, err := subs.CreateSubscription("https://push.example/live", "p256dh", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	fake.errFor["https://push.example/dead"] = ErrExpired

	n.Notify(successEvent())

	remaining, err := subs.List()
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Endpoint != "https://push.example/live" {
		t.Errorf("remaining = %v, want only the live endpoint", remaining)
	}
	if len(fake.targets) != 1 {
		t.Errorf("delivered = %v, want one delivery to the live endpoint", fake.targets)
	}
}

func TestNotifyLogsAndContinuesOnSendError(t *testing.T) {
	n, fake, subs := setupNotifier(t)
	if _, err := subs.CreateSubscription("https://push.example/flaky", "p256dh", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if _, err := subs.CreateSubscription("https://push.example/ok", "p256dh", "auth", ""); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	fake.errFor["https://push.example/flaky"] = errors.New("push service returned 500")

	n.Notify(successEvent())

	// The flaky endpoint must not be pruned and must not block the other.
	remaining, _ := subs.List()
	if len(remaining) != 2 {
		t.Errorf("remaining = %d, want 2", len(remaining))
	}
	if len(fake.targets) != 1 || fake.targets[0] != "https://push.example/ok" {
		t.Errorf("delivered = %v, want one delivery to the ok endpoint", fake.targets)
	}
}
