// Package session stores server-side web sessions in redis. The browser only
// ever holds the opaque session id.
package session

import (
	"context"
	"errors"
	"time"

	"cellarhub/server/internal/security"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string    `json:"-"`
	UserID    int64     `json:"uid,omitempty"`
	Username  string    `json:"username,omitempty"`
	IsAdmin   bool      `json:"admin,omitempty"`
	CSRF      string    `json:"csrf"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns an unsaved, unauthenticated session with a fresh id and
// anti-forgery token.
func New(now time.Time) (*Session, error) {
	id, err := security.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	csrf, err := security.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, CSRF: csrf, CreatedAt: now}, nil
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID > 0
}

func (s *Session) Login(userID int64, username string, isAdmin bool) {
	s.UserID = userID
	s.Username = username
	s.IsAdmin = isAdmin
}

// Fingerprint identifies the session in logs without revealing the id.
func (s *Session) Fingerprint() string {
	if s == nil || s.ID == "" {
		return "none"
	}
	return security.HashToken(s.ID)[:12]
}

type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// Regenerate moves the session to a new id with a new anti-forgery
	// token and deletes the old one.
	Regenerate(ctx context.Context, s *Session) error
	Destroy(ctx context.Context, id string) error
}
