package model

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	House        string    `json:"house"`
	Points       int       `json:"points"`
	Tasks        int       `json:"tasks"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsPrivileged reports whether u is the admin account. Either the role flag
// or a match on the reserved admin email is enough; records written by older
// clients may carry only one of the two.
func (u *User) IsPrivileged(adminEmail string) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	return adminEmail != "" && strings.EqualFold(strings.TrimSpace(u.Email), adminEmail)
}
