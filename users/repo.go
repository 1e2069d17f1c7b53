package users

import (
	"context"
	"errors"
)

// ErrDuplicateExternalID is returned by Insert when another user already owns
// the external identifier. Callers racing on first login re-fetch and reuse
// the winner's row.
var ErrDuplicateExternalID = errors.New("external identifier already in use")

// ErrNotFound is returned when no user matches the lookup key.
var ErrNotFound = errors.New("user not found")

type Repo interface {
	Insert(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
}
