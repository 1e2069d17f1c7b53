package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session matches the token.
var ErrNotFound = errors.New("session not found")

// Repo manages server-side session storage. Sessions are invalidated by
// explicit logout, expiry, or admin revocation.
type Repo interface {
	// Upsert creates or replaces a session keyed by its token
	Upsert(ctx context.Context, session *Session) error

	// Get retrieves a session by its opaque token
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session by its opaque token
	Delete(ctx context.Context, token string) error

	// DeleteByUserID removes every session belonging to a user (admin revocation)
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired removes sessions that expired before the given time
	DeleteExpired(ctx context.Context, before time.Time) error
}
