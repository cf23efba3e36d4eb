package model

import "time"

// AttemptEvent is one durable entry in an account's attempt history. The
// event log is append-only; a chat's full purchase history for an account can
// be reconstructed from it.
type AttemptEvent struct {
	ID        int64     `json:"id"`
	LoginID   string    `json:"login_id"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}
