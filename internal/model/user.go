// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents a registered member of the idea board.
//
// Email is the login identifier. It is stored in canonical form (trimmed and
// lower-cased, see NormalizeEmail) so that "Ana@Example.com " and
// "ana@example.com" can never become two accounts.
//
// PasswordHash is empty for accounts created through GitHub sign-in. bcrypt
// never verifies against an empty hash, so such accounts cannot log in with a
// password until one is set.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"` // never serialised
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// NormalizeEmail returns the canonical form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
