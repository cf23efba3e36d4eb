package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/snagbot/internal/model"
	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

// sender abstracts Service.Send for tests.
type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// Notifier fans terminal purchase outcomes out to every registered web push
// subscription. Progress outcomes are skipped: a push per 60-second attempt
// would bury the one notification that matters.
type Notifier struct {
	service sender
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: service, subs: subs, logger: logger}
}

// Notify implements scheduler.Notifier. Failures are logged, never
// propagated; expired subscriptions are pruned as they are discovered.
func (n *Notifier) Notify(ev scheduler.Event) {
	payload, ok := payloadFor(ev)
	if !ok {
		return
	}

	subs, err := n.subs.List()
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := n.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if derr := n.subs.DeleteByEndpoint(sub.Endpoint); derr != nil {
					n.logger.Error("prune expired subscription", "endpoint", sub.Endpoint, "error", derr)
				}
				continue
			}
			n.logger.Error("send push", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

func payloadFor(ev scheduler.Event) (Payload, bool) {
	switch ev.Kind {
	case ugphone.KindSuccess:
		return Payload{
			Title: "Trial purchased",
			Body:  fmt.Sprintf("Account %s got the trial on attempt %d (order %s)", ev.Account.LoginID, ev.Attempt, ev.OrderID),
			URL:   "/",
			Tag:   "purchase-" + ev.Account.LoginID,
		}, true
	case ugphone.KindAuthError:
		return Payload{
			Title: "Credentials rejected",
			Body:  fmt.Sprintf("Account %s needs a fresh login: %s", ev.Account.LoginID, ev.Reason),
			URL:   "/",
			Tag:   "auth-" + ev.Account.LoginID,
		}, true
	default:
		return Payload{}, false
	}
}
