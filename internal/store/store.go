// Package store persists sessions. Two implementations exist: an in-memory
// store for tests and single-process backtests, and a PostgreSQL store for
// the service. The Redis locker guards concurrent updates across processes.
package store

import (
	"context"
	"errors"

	"regime-engine/internal/engine"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("session not found")

// SessionStore persists and retrieves sessions. Save must be atomic: a
// partially written session is never observable.
type SessionStore interface {
	Save(ctx context.Context, session *engine.Session) error
	Get(ctx context.Context, id string) (*engine.Session, error)
	List(ctx context.Context) ([]*engine.Session, error)
	Delete(ctx context.Context, id string) error
}
