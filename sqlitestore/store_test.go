package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/sqlitestore"
	"github.com/jrsteele09/go-identity-bridge/users"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUser(id, email, externalID string) *users.User {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &users.User{
		ID:                 id,
		Email:              email,
		FirstName:          "Jane",
		LastName:           "Doe",
		ExternalIdentifier: externalID,
		Role:               users.RoleMember,
		Status:             users.StatusActive,
		DateJoined:         now,
		LastLogin:          now,
	}
}

func TestStore_InsertAndGetUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := testUser("user-1", "jane.doe@example.com", "sub-1")
	require.NoError(t, store.Insert(ctx, user))

	byID, err := store.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, user.Email, byID.Email)
	require.Equal(t, user.ExternalIdentifier, byID.ExternalIdentifier)
	require.Equal(t, user.DateJoined.UnixMilli(), byID.DateJoined.UnixMilli())

	byExternal, err := store.GetByExternalID(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", byExternal.ID)
}

func TestStore_GetByEmailIsCaseInsensitive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("user-1", "Jane.Doe@Example.com", "sub-1")))

	user, err := store.GetByEmail(ctx, "jane.doe@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
}

func TestStore_GetMissingUser(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetByID(context.Background(), "no-such-user")
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestStore_DuplicateExternalIDRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("user-1", "jane.doe@example.com", "sub-1")))

	err := store.Insert(ctx, testUser("user-2", "other@example.com", "sub-1"))
	require.ErrorIs(t, err, users.ErrDuplicateExternalID)
}

func TestStore_EmptyExternalIDsDoNotCollide(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Pre-federation imports have no external identifier yet; any number of
	// them may coexist.
	require.NoError(t, store.Insert(ctx, testUser("user-1", "a@example.com", "")))
	require.NoError(t, store.Insert(ctx, testUser("user-2", "b@example.com", "")))
}

func TestStore_UpdateUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := testUser("user-1", "jane.doe@example.com", "")
	require.NoError(t, store.Insert(ctx, user))

	user.ExternalIdentifier = "sub-1"
	user.LastLogin = user.LastLogin.Add(time.Hour)
	require.NoError(t, store.Update(ctx, user))

	updated, err := store.GetByExternalID(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", updated.ID)
	require.Equal(t, user.LastLogin.UnixMilli(), updated.LastLogin.UnixMilli())
}

func TestStore_ListUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("user-1", "a@example.com", "sub-1")))
	require.NoError(t, store.Insert(ctx, testUser("user-2", "b@example.com", "sub-2")))
	require.NoError(t, store.Insert(ctx, testUser("user-3", "c@example.com", "sub-3")))

	page, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestStore_SessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testUser("user-1", "jane.doe@example.com", "sub-1")))
	require.NoError(t, store.Upsert(ctx, &sessions.Session{
		Token:     "refresh-token-1",
		UserID:    "user-1",
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
		CreatedAt: now,
	}))

	session, err := store.Get(ctx, "refresh-token-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "10.0.0.1", session.IP)
	require.Equal(t, now.Add(7*24*time.Hour).UnixMilli(), session.ExpiresAt.UnixMilli())

	require.NoError(t, store.Delete(ctx, "refresh-token-1"))
	_, err = store.Get(ctx, "refresh-token-1")
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestStore_DeleteMissingSession(t *testing.T) {
	store := openTestStore(t)

	err := store.Delete(context.Background(), "no-such-token")
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestStore_DeleteByUserID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testUser("user-1", "jane.doe@example.com", "sub-1")))
	for _, token := range []string{"t1", "t2"} {
		require.NoError(t, store.Upsert(ctx, &sessions.Session{
			Token:     token,
			UserID:    "user-1",
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
		}))
	}

	require.NoError(t, store.DeleteByUserID(ctx, "user-1"))

	_, err := store.Get(ctx, "t1")
	require.ErrorIs(t, err, sessions.ErrNotFound)
	_, err = store.Get(ctx, "t2")
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestStore_DeleteExpired(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, testUser("user-1", "jane.doe@example.com", "sub-1")))
	require.NoError(t, store.Upsert(ctx, &sessions.Session{
		Token: "expired", UserID: "user-1", ExpiresAt: now.Add(-time.Hour), CreatedAt: now,
	}))
	require.NoError(t, store.Upsert(ctx, &sessions.Session{
		Token: "live", UserID: "user-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	require.NoError(t, store.DeleteExpired(ctx, now))

	_, err := store.Get(ctx, "expired")
	require.ErrorIs(t, err, sessions.ErrNotFound)
	_, err = store.Get(ctx, "live")
	require.NoError(t, err)
}
