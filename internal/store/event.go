package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/snagbot/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(loginID, kind, reason, orderID string, attempt int) error {
	_, err := s.db.Exec(
		`INSERT INTO attempt_events (login_id, kind, reason, order_id, attempt)
		 VALUES (?, ?, ?, ?, ?)`,
		loginID, kind, reason, orderID, attempt,
	)
	if err != nil {
		return fmt.Errorf("append attempt event: %w", err)
	}
	return nil
}

func (s *EventStore) ListByAccount(loginID string, limit int) ([]model.AttemptEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, login_id, kind, reason, order_id, attempt, created_at
		 FROM attempt_events WHERE login_id = ? ORDER BY id DESC LIMIT ?`,
		loginID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempt events: %w", err)
	}
	defer rows.Close()

	var events []model.AttemptEvent
	for rows.Next() {
		var e model.AttemptEvent
		if err := rows.Scan(&e.ID, &e.LoginID, &e.Kind, &e.Reason, &e.OrderID, &e.Attempt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
