package model

import "encoding/json"

// User is the account a credential belongs to. Preferences is stored by the
// server as an opaque JSON value.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Username    string          `json:"username"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}
