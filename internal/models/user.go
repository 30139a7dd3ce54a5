package models

import "time"

// User represents a registered user account.
// The username is the identity used everywhere else (list membership,
// request routing, realtime subscriptions).
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Username is unique and immutable.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash. Never serialized.
	PasswordHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
