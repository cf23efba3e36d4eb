package telegram

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/snagbot/internal/database"
	"github.com/dukerupert/snagbot/internal/model"
	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

func setupNotifier(t *testing.T) (*Notifier, *fakeTelegram, *store.AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client, fake := newFakeClient(t)
	accounts := store.NewAccountStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotifier(client, accounts, logger), fake, accounts
}

func event(acc *model.Account, kind ugphone.Kind, attempt int) scheduler.Event {
	return scheduler.Event{
		Account: acc,
		Kind:    kind,
		Reason:  "sold out",
		Attempt: attempt,
		At:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestNotifySuccessRemovesAccount(t *testing.T) {
	n, fake, accounts := setupNotifier(t)
	acc, err := accounts.Create(42, "ug-1", "tok-1", `{}`)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	ev := event(acc, ugphone.KindSuccess, 3)
	ev.OrderID = "ORD-7"
	n.Notify(ev)

	texts := fake.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "ORD-7") {
		t.Errorf("messages = %v, want one success message with the order id", texts)
	}

	stored, _ := accounts.GetByLoginID("ug-1")
	if stored != nil {
		t.Error("expected account removed after success")
	}
}

func TestNotifyAuthErrorRemovesAccount(t *testing.T) {
	n, fake, accounts := setupNotifier(t)
	acc, err := accounts.Create(42, "ug-1", "tok-1", `{}`)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	n.Notify(event(acc, ugphone.KindAuthError, 1))

	texts := fake.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "REJECTED") {
		t.Errorf("messages = %v, want one credential-rejected message", texts)
	}
	stored, _ := accounts.GetByLoginID("ug-1")
	if stored != nil {
		t.Error("expected account removed after auth error")
	}
}

func TestNotifyProgressEditsRollingStatus(t *testing.T) {
	n, fake, accounts := setupNotifier(t)
	acc, err := accounts.Create(42, "ug-1", "tok-1", `{}`)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	n.Notify(event(acc, ugphone.KindNotYetAvailable, 1))
	n.Notify(event(acc, ugphone.KindNotYetAvailable, 2))
	n.Notify(event(acc, ugphone.KindServiceError, 3))

	// One message sent, later attempts edit it in place.
	if texts := fake.sentTexts(); len(texts) != 1 {
		t.Fatalf("sent count = %d, want 1", len(texts))
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.edits) != 2 {
		t.Errorf("edit count = %d, want 2", len(fake.edits))
	}
	last := fake.edits[len(fake.edits)-1]["text"].(string)
	if !strings.Contains(last, "attempt 3") {
		t.Errorf("last status = %q, want attempt 3 mentioned", last)
	}
}
