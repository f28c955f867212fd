package models

import "time"

type ShareStatus string

const (
	ShareStatusActive  ShareStatus = "active"
	ShareStatusRevoked ShareStatus = "revoked"
)

type Share struct {
	ID          int64
	Token       string
	WineID      int64
	UserID      int64
	Title       *string
	Excerpt     *string
	IsIndexable bool
	ExpiresAt   *time.Time
	OGImageURL  *string
	Status      ShareStatus
	CreatedAt   time.Time
}

// Visible reports whether the share can be served publicly at now.
func (s Share) Visible(now time.Time) bool {
	if s.Status != ShareStatusActive {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}
