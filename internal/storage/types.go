package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled   = errors.New("storage disabled")
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Config configures the audit log.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file (modernc.org/sqlite)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an admin action.
type AuditEntry struct {
	ID      int64     `json:"-" db:"id"`
	At      time.Time `json:"at" db:"at"`
	ActorID int64     `json:"actor_id" db:"actor_id"`
	Action  string    `json:"action" db:"action"`
	Target  string    `json:"target,omitempty" db:"target"`
	OK      int       `json:"ok,omitempty" db:"ok"`
	Fail    int       `json:"fail,omitempty" db:"fail"`
	Error   string    `json:"error,omitempty" db:"err"`
	Meta    string    `json:"meta,omitempty" db:"meta"`
}
