package ugphone

import (
	"encoding/json"
	"errors"
)

// ErrInvalidCredentials is returned when a pasted credential blob is not
// valid JSON or is missing a required field. Payloads that fail here are
// rejected before anything is persisted.
var ErrInvalidCredentials = errors.New("credential JSON must contain access_token and login_id")

// Credentials are the two fields every API call needs, plus the original
// blob so requests can carry anything else the live protocol wants.
type Credentials struct {
	AccessToken string
	LoginID     string
	RawPayload  string
}

// ParseCredentials extracts the access token and login id from a pasted
// UGPHONE-MQTT JSON blob. The legacy export format used different key names;
// both are accepted.
func ParseCredentials(blob string) (*Credentials, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &fields); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := stringField(fields, "access_token")
	loginID := stringField(fields, "login_id")

	if token == "" && loginID == "" {
		token = stringField(fields, "UGPHONE-Token")
		loginID = stringField(fields, "UGPHONE-ID")
	}

	if token == "" || loginID == "" {
		return nil, ErrInvalidCredentials
	}

	return &Credentials{
		AccessToken: token,
		LoginID:     loginID,
		RawPayload:  blob,
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
