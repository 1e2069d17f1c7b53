package sessionrepofakes

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-bridge/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	store map[string]*sessions.Session
	lock  sync.RWMutex

	// FailUpserts makes every Upsert fail, for exercising the degraded
	// stateless refresh-token path.
	FailUpserts bool
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		store: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	if sr.FailUpserts {
		return errSessionStoreDown
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	stored := *session
	sr.store[session.Token] = &stored
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, token string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.store[token]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, token string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.store[token]; !ok {
		return sessions.ErrNotFound
	}
	delete(sr.store, token)
	return nil
}

func (sr *FakeSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for token, session := range sr.store {
		if session.UserID == userID {
			delete(sr.store, token)
		}
	}
	return nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for token, session := range sr.store {
		if session.ExpiresAt.Before(before) {
			delete(sr.store, token)
		}
	}
	return nil
}

// Count returns the number of stored sessions (test helper).
func (sr *FakeSessionRepo) Count() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.store)
}

type sessionStoreError string

func (e sessionStoreError) Error() string { return string(e) }

const errSessionStoreDown = sessionStoreError("session store unavailable")
