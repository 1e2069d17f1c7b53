// Package client implements the browser-side half of the identity bridge:
// driving the provider's popup/redirect handshake, silent re-authentication,
// and proactive token refresh. Host facilities (window context, storage, the
// IdP library itself) are injected as interfaces so the package stays
// host-agnostic.
package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInteractionRequired is the provider saying a silent flow cannot
	// proceed without user interaction. It is an expected outcome of silent
	// acquisition, not a failure; callers branch on it with errors.Is.
	ErrInteractionRequired = errors.New("interaction required")

	// ErrPopupBlocked means the browser refused to open the login popup.
	// Callers fall back to a full-page redirect.
	ErrPopupBlocked = errors.New("popup blocked")
)

// Account identifies a signed-in account cached by the IdP library.
type Account struct {
	HomeID   string
	Username string
	TenantID string
}

// AuthResult is a completed acquisition from the provider.
type AuthResult struct {
	IDToken   string
	Account   *Account
	ExpiresAt time.Time
}

// IdP abstracts the provider's browser library. The active account pointer is
// the single source of truth for "who is currently logged in" on the client;
// every identity-changing operation funnels through it.
type IdP interface {
	// HandleRedirect completes a redirect-based handshake. Returns (nil, nil)
	// when the current URL carries no redirect response.
	HandleRedirect(ctx context.Context) (*AuthResult, error)

	LoginPopup(ctx context.Context) (*AuthResult, error)
	LoginRedirect(ctx context.Context) error

	// AcquireTokenSilent acquires a token from cache or a hidden SSO frame.
	AcquireTokenSilent(ctx context.Context, account Account) (*AuthResult, error)

	// SsoSilent probes for an existing provider session without any account hint.
	SsoSilent(ctx context.Context) (*AuthResult, error)

	Accounts() []Account
	ActiveAccount() *Account
	SetActiveAccount(account *Account)

	Logout(ctx context.Context) error
}

// IdPFactory constructs the IdP client. Construction may perform network I/O
// (metadata discovery), so it happens once, lazily, behind the orchestrator's
// initialization guard.
type IdPFactory func(ctx context.Context) (IdP, error)
