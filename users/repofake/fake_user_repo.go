package userrepofake

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jrsteele09/go-identity-bridge/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory users.Repo for tests. It enforces the same
// uniqueness rule on external identifiers as the SQLite store.
type FakeUserRepo struct {
	usersByID   map[string]*users.User
	externalIDs map[string]string // external identifier to user ID
	emails      map[string]string // lowercased email to user ID
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		usersByID:   make(map[string]*users.User),
		externalIDs: make(map[string]string),
		emails:      make(map[string]string),
	}
}

func (ur *FakeUserRepo) Insert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ExternalIdentifier != "" {
		if _, ok := ur.externalIDs[user.ExternalIdentifier]; ok {
			return users.ErrDuplicateExternalID
		}
	}

	stored := *user
	ur.usersByID[stored.ID] = &stored
	if stored.ExternalIdentifier != "" {
		ur.externalIDs[stored.ExternalIdentifier] = stored.ID
	}
	if stored.Email != "" {
		ur.emails[strings.ToLower(stored.Email)] = stored.ID
	}
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	existing, ok := ur.usersByID[user.ID]
	if !ok {
		return users.ErrNotFound
	}

	if user.ExternalIdentifier != "" && user.ExternalIdentifier != existing.ExternalIdentifier {
		if ownerID, taken := ur.externalIDs[user.ExternalIdentifier]; taken && ownerID != user.ID {
			return users.ErrDuplicateExternalID
		}
		delete(ur.externalIDs, existing.ExternalIdentifier)
		ur.externalIDs[user.ExternalIdentifier] = user.ID
	}
	if user.Email != "" && !strings.EqualFold(user.Email, existing.Email) {
		delete(ur.emails, strings.ToLower(existing.Email))
		ur.emails[strings.ToLower(user.Email)] = user.ID
	}

	stored := *user
	ur.usersByID[user.ID] = &stored
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.usersByID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) GetByExternalID(_ context.Context, externalID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.externalIDs[externalID]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *ur.usersByID[id]
	return &copied, nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emails[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *ur.usersByID[id]
	return &copied, nil
}

func (ur *FakeUserRepo) List(_ context.Context, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	all := make([]*users.User, 0, len(ur.usersByID))
	for _, u := range ur.usersByID {
		copied := *u
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
