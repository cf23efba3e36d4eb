package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

const notifyTimeout = 15 * time.Second

// Notifier delivers scheduler events into the owning chat. Progress updates
// edit a single rolling status message per account instead of flooding the
// chat with one message per attempt; terminal outcomes always get a fresh
// message.
type Notifier struct {
	client   *Client
	accounts *store.AccountStore
	logger   *slog.Logger

	mu         sync.Mutex
	statusMsgs map[string]int64 // login id -> rolling status message id
}

func NewNotifier(client *Client, accounts *store.AccountStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:     client,
		accounts:   accounts,
		logger:     logger,
		statusMsgs: make(map[string]int64),
	}
}

// Notify implements scheduler.Notifier. Failures are logged, never
// propagated.
func (n *Notifier) Notify(ev scheduler.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	chatID := ev.Account.ChatID
	loginID := ev.Account.LoginID

	switch ev.Kind {
	case ugphone.KindSuccess:
		text := fmt.Sprintf(
			"SUCCESS!\n\nAccount: %s\nOrder: %s\nAttempts: %d\n\nThe account has been removed from the list.",
			loginID, ev.OrderID, ev.Attempt,
		)
		n.send(ctx, chatID, text)
		n.removeAccount(loginID)
	case ugphone.KindAuthError:
		text := fmt.Sprintf(
			"CREDENTIALS REJECTED\n\nAccount: %s\nReason: %s\n\n"+
				"The account has been removed. Log in to UgPhone again and /add the fresh credential JSON.",
			loginID, ev.Reason,
		)
		n.send(ctx, chatID, text)
		n.removeAccount(loginID)
	default:
		status := fmt.Sprintf(
			"Working on %s\n[%s] attempt %d: %s",
			loginID, ev.At.Format("15:04:05"), ev.Attempt, describe(ev),
		)
		n.updateStatus(ctx, chatID, loginID, status)
	}
}

func describe(ev scheduler.Event) string {
	switch ev.Kind {
	case ugphone.KindNotYetAvailable:
		if ev.Reason != "" {
			return "not available yet (" + ev.Reason + ")"
		}
		return "not available yet"
	case ugphone.KindAlreadyOwned:
		if ev.Reason != "" {
			return "already claimed? (" + ev.Reason + ")"
		}
		return "trial already claimed on this account"
	default:
		if ev.Reason != "" {
			return ev.Reason
		}
		return string(ev.Kind)
	}
}

func (n *Notifier) updateStatus(ctx context.Context, chatID int64, loginID, text string) {
	n.mu.Lock()
	msgID, tracked := n.statusMsgs[loginID]
	n.mu.Unlock()

	if tracked {
		if err := n.client.EditMessageText(ctx, chatID, msgID, text); err == nil {
			return
		}
		// Message deleted or too old; fall through and send a fresh one.
	}

	msgID, err := n.client.SendMessage(ctx, chatID, text, nil)
	if err != nil {
		n.logger.Error("send status", "chat_id", chatID, "login_id", loginID, "error", err)
		return
	}
	n.mu.Lock()
	n.statusMsgs[loginID] = msgID
	n.mu.Unlock()
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string) {
	if _, err := n.client.SendMessage(ctx, chatID, text, nil); err != nil {
		n.logger.Error("send notification", "chat_id", chatID, "error", err)
	}
}

// removeAccount drops the durable record after a terminal outcome; the cycle
// itself has already stopped. The trial is one-shot per account, so a
// succeeded or credential-dead account has no reason to stay in the store.
func (n *Notifier) removeAccount(loginID string) {
	if _, err := n.accounts.Delete(loginID); err != nil {
		n.logger.Error("remove account after terminal outcome", "login_id", loginID, "error", err)
	}
	n.mu.Lock()
	delete(n.statusMsgs, loginID)
	n.mu.Unlock()
}
