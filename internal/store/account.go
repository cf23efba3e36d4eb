package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/snagbot/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	err := scanner.Scan(&a.ID, &a.ChatID, &a.LoginID, &a.AccessToken, &a.RawPayload, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const accountCols = `id, chat_id, login_id, access_token, raw_payload, created_at, updated_at`

// Create inserts an account, or refreshes the token and payload if the login
// id is already known. Re-pasting credentials for an existing account is the
// normal way to rotate an expired token.
func (s *AccountStore) Create(chatID int64, loginID, accessToken, rawPayload string) (*model.Account, error) {
	_, err := s.db.Exec(
		`INSERT INTO accounts (chat_id, login_id, access_token, raw_payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(login_id) DO UPDATE SET
		   chat_id = excluded.chat_id,
		   access_token = excluded.access_token,
		   raw_payload = excluded.raw_payload,
		   updated_at = CURRENT_TIMESTAMP`,
		chatID, loginID, accessToken, rawPayload,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetByLoginID(loginID)
}

func (s *AccountStore) GetByLoginID(loginID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE login_id = ?`, loginID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) List() ([]model.Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (s *AccountStore) ListByChat(chatID int64) ([]model.Account, error) {
	rows, err := s.db.Query(`SELECT `+accountCols+` FROM accounts WHERE chat_id = ? ORDER BY created_at`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by chat: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// Delete removes the account and reports whether a row existed.
func (s *AccountStore) Delete(loginID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM accounts WHERE login_id = ?`, loginID)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func scanAccounts(rows *sql.Rows) ([]model.Account, error) {
	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}
