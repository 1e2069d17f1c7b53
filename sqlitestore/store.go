// Package sqlitestore persists users and sessions in a single SQLite file.
// The unique index on external_identifier is what makes identity resolution
// safe under concurrent first logins; application-level checks alone cannot
// close that race.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/users"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL,
	first_name          TEXT NOT NULL DEFAULT '',
	last_name           TEXT NOT NULL DEFAULT '',
	external_identifier TEXT NOT NULL DEFAULT '',
	domain_email        TEXT NOT NULL DEFAULT '',
	role                TEXT NOT NULL,
	status              TEXT NOT NULL,
	date_joined         INTEGER NOT NULL,
	last_login          INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS users_external_identifier
	ON users (external_identifier) WHERE external_identifier != '';

CREATE INDEX IF NOT EXISTS users_email ON users (email COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id),
	expires_at INTEGER NOT NULL,
	ip         TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_user_id ON sessions (user_id);
CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements users.Repo and sessions.Repo over one SQLite file, so the
// resolver and the issuer share the same transaction and visibility
// boundaries.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ users.Repo    = (*Store)(nil)
	_ sessions.Repo = (*Store)(nil)
)

// Open opens the store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, user *users.User) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, external_identifier, domain_email, role, status, date_joined, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.ExternalIdentifier,
		user.DomainDerivedEmail, string(user.Role), string(user.Status),
		toMillis(user.DateJoined), toMillis(user.LastLogin),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return users.ErrDuplicateExternalID
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, user *users.User) error {
	result, err := s.sqlDB.ExecContext(ctx, `
		UPDATE users
		SET email = ?, first_name = ?, last_name = ?, external_identifier = ?, domain_email = ?, role = ?, status = ?, last_login = ?
		WHERE id = ?`,
		user.Email, user.FirstName, user.LastName, user.ExternalIdentifier,
		user.DomainDerivedEmail, string(user.Role), string(user.Status),
		toMillis(user.LastLogin), user.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return users.ErrDuplicateExternalID
		}
		return fmt.Errorf("update user: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return users.ErrNotFound
	}
	return nil
}

const selectUser = `
SELECT id, email, first_name, last_name, external_identifier, domain_email, role, status, date_joined, last_login
FROM users
`

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.scanUser(s.sqlDB.QueryRowContext(ctx, selectUser+"WHERE id = ?", id))
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*users.User, error) {
	return s.scanUser(s.sqlDB.QueryRowContext(ctx, selectUser+"WHERE external_identifier = ? AND external_identifier != ''", externalID))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.scanUser(s.sqlDB.QueryRowContext(ctx, selectUser+"WHERE email = ? COLLATE NOCASE", email))
}

func (s *Store) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, selectUser+"ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []*users.User
	for rows.Next() {
		user, err := s.scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row *sql.Row) (*users.User, error) {
	user, err := s.scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, users.ErrNotFound
	}
	return user, err
}

func (s *Store) scanUserRow(row rowScanner) (*users.User, error) {
	var user users.User
	var role, status string
	var dateJoined, lastLogin int64
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.ExternalIdentifier, &user.DomainDerivedEmail, &role, &status,
		&dateJoined, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.Role = users.RoleType(role)
	user.Status = users.StatusType(status)
	user.DateJoined = fromMillis(dateJoined)
	user.LastLogin = fromMillis(lastLogin)
	return &user, nil
}

func (s *Store) Upsert(ctx context.Context, session *sessions.Session) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			user_id = excluded.user_id,
			expires_at = excluded.expires_at,
			ip = excluded.ip,
			user_agent = excluded.user_agent,
			created_at = excluded.created_at`,
		session.Token, session.UserID, toMillis(session.ExpiresAt),
		session.IP, session.UserAgent, toMillis(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tokenStr string) (*sessions.Session, error) {
	var session sessions.Session
	var expiresAt, createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT token, user_id, expires_at, ip, user_agent, created_at
		FROM sessions
		WHERE token = ?`, tokenStr,
	).Scan(&session.Token, &session.UserID, &expiresAt, &session.IP, &session.UserAgent, &createdAt)
	if err == sql.ErrNoRows {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	return &session, nil
}

func (s *Store) Delete(ctx context.Context, tokenStr string) error {
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", tokenStr)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sessions.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete sessions for user: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", toMillis(before)); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
