package client

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const ssoAttemptedKey = "sso_attempted"

// Outcome classifies a silent probe's result.
type Outcome int

const (
	// OutcomeAuthenticated means a token was obtained without interaction.
	OutcomeAuthenticated Outcome = iota
	// OutcomeNoSession means no session exists; interactive login is needed.
	OutcomeNoSession
)

// SilentResult carries the probe outcome and, when authenticated, the token.
type SilentResult struct {
	Outcome Outcome
	Auth    *AuthResult
}

// SilentAuthManager probes for an existing IdP session without user
// interaction. The cross-domain SSO probe runs at most once per tab: the
// attempted flag is tab-scoped and recorded before the probe starts, so a
// probe that hangs or crashes the page is never retried in a loop.
type SilentAuthManager struct {
	orch    *Orchestrator
	session Storage
	logger  zerolog.Logger
}

func NewSilentAuthManager(orch *Orchestrator, session Storage, logger zerolog.Logger) (*SilentAuthManager, error) {
	if orch == nil {
		return nil, errors.New("[NewSilentAuthManager] orchestrator is required")
	}
	if session == nil {
		return nil, errors.New("[NewSilentAuthManager] session storage is required")
	}

	return &SilentAuthManager{orch: orch, session: session, logger: logger}, nil
}

// Attempt tries to authenticate silently. Interaction-required responses are
// an expected outcome, not an error.
func (m *SilentAuthManager) Attempt(ctx context.Context) (SilentResult, error) {
	idp, err := m.orch.Client(ctx)
	if err != nil {
		return SilentResult{Outcome: OutcomeNoSession}, err
	}

	if account := idp.ActiveAccount(); account != nil {
		result, err := idp.AcquireTokenSilent(ctx, *account)
		if errors.Is(err, ErrInteractionRequired) {
			m.logger.Debug().Str("username", account.Username).Msg("cached session requires interaction")
			return SilentResult{Outcome: OutcomeNoSession}, nil
		}
		if err != nil {
			return SilentResult{Outcome: OutcomeNoSession}, errors.Wrap(err, "[SilentAuthManager.Attempt] AcquireTokenSilent")
		}
		return SilentResult{Outcome: OutcomeAuthenticated, Auth: result}, nil
	}

	// No cached account. The cross-domain probe is skipped inside an auth
	// window (the handshake owns that context) and after a prior attempt
	// in this tab.
	if m.orch.IsAuthWindow() {
		return SilentResult{Outcome: OutcomeNoSession}, nil
	}
	if _, attempted := m.session.Get(ssoAttemptedKey); attempted {
		return SilentResult{Outcome: OutcomeNoSession}, nil
	}
	m.session.Set(ssoAttemptedKey, "1")

	result, err := idp.SsoSilent(ctx)
	if errors.Is(err, ErrInteractionRequired) {
		return SilentResult{Outcome: OutcomeNoSession}, nil
	}
	if err != nil {
		return SilentResult{Outcome: OutcomeNoSession}, errors.Wrap(err, "[SilentAuthManager.Attempt] SsoSilent")
	}

	idp.SetActiveAccount(result.Account)
	return SilentResult{Outcome: OutcomeAuthenticated, Auth: result}, nil
}
