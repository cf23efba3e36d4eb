package websocket

import (
	"github.com/dukerupert/snagbot/internal/scheduler"
)

// Notifier bridges scheduler events onto the hub so the status dashboard
// sees every attempt as it completes.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Notify implements scheduler.Notifier. Broadcast never blocks, so this is
// safe to run on the attempt goroutine.
func (n *Notifier) Notify(ev scheduler.Event) {
	n.hub.Broadcast(NewAttemptMessage(
		ev.Account.LoginID,
		string(ev.Kind),
		string(ev.State),
		ev.Reason,
		ev.OrderID,
		ev.Attempt,
		ev.At,
	))
}
