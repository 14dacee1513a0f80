// Package models holds the server-side data model.
package models

import "time"

// Role is the access level of a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a stored account. PasswordHash is the bcrypt digest of the
// password; it must never appear in a response payload or a log line.
type User struct {
	ID           string
	Email        string
	Name         string
	Tel          string
	Role         Role
	PasswordHash string
	// DocumentKey is the object-storage key of the user's private document,
	// empty when none is attached.
	DocumentKey string
	CreatedAt   time.Time
}
