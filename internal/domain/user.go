package domain

import "time"

// User is an identity that can authenticate and act on tickets.
// PasswordHash is only populated by credential lookups; regular reads leave it empty.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// UserRef is the presentation projection of a referenced user.
type UserRef struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Ref projects the user into a reference without credentials.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Counter is a named monotonic integer sequence.
type Counter struct {
	Name  string
	Value int64
}
