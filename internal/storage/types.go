package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("token not found")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserToken is a one-shot token issued to a user (password reset, account
// confirmation). UID is the primary key.
type UserToken struct {
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the token persistence API.
type Store interface {
	// PutToken inserts or replaces the token of t.UID. A zero CreatedAt is
	// set to now.
	PutToken(ctx context.Context, t UserToken) error
	FindByToken(ctx context.Context, token string) (UserToken, error)
	FindByUID(ctx context.Context, uid string) (UserToken, error)
	// FindCreatedBefore lists tokens created strictly before t, oldest first.
	FindCreatedBefore(ctx context.Context, t time.Time) ([]UserToken, error)
	// DeleteToken removes the token of uid. Deleting a missing uid is not an error.
	DeleteToken(ctx context.Context, uid string) error
	Close() error
}
