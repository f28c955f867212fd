package models

import "time"

type PasswordReset struct {
	ID        int64
	UserID    int64
	Username  string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Redeemable reports whether the reset can still authorize a password change.
func (r PasswordReset) Redeemable(now time.Time) bool {
	return !r.Used && !now.After(r.ExpiresAt)
}

type RateLimitWindow struct {
	ID          int64
	KeyName     string
	WindowStart time.Time
	Count       int
}
