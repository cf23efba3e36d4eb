package model

import "time"

// Account holds one set of UgPhone credentials owned by a Telegram chat.
// LoginID is the stable identifier the remote API knows the account by;
// RawPayload keeps the full credential blob the user pasted, since the live
// protocol may require fields beyond the two we extract.
type Account struct {
	ID          int64     `json:"id"`
	ChatID      int64     `json:"chat_id"`
	LoginID     string    `json:"login_id"`
	AccessToken string    `json:"-"`
	RawPayload  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MaskedToken returns the access token with the middle elided, safe to echo
// back into chat.
func (a *Account) MaskedToken() string {
	if len(a.AccessToken) <= 10 {
		return "***"
	}
	return a.AccessToken[:5] + "..." + a.AccessToken[len(a.AccessToken)-5:]
}
