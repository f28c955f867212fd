package models

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// RememberToken is one persistent-login credential. Only the hash of the
// validator half of the cookie is stored.
type RememberToken struct {
	ID            int64
	UserID        int64
	Selector      string
	ValidatorHash string
	ExpiresAt     time.Time
	IP            string
	UserAgent     string
	CreatedAt     time.Time
	LastUsedAt    *time.Time
}

func (t RememberToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
