package sessions

import "time"

// Session is the persisted server-side half of a refresh token. The client
// only ever holds the opaque Token string; everything else is server-side
// metadata used to mint new access tokens.
type Session struct {
	Token     string    // Opaque random token string (sent to client)
	UserID    string    // User the session belongs to
	ExpiresAt time.Time // Hard expiry; sessions are never extended
	IP        string    // Request metadata captured at login
	UserAgent string    // Request metadata captured at login
	CreatedAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
