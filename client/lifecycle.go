package client

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-identity-bridge/token"
)

// DefaultExpiryHorizon is how far ahead of expiry a token counts as
// expiring. It must exceed the check cadence so a token cannot slip from
// fresh to expired between ticks.
const DefaultExpiryHorizon = 5 * time.Minute

// DefaultCheckInterval is the periodic backstop cadence. Browser timers
// throttle in background tabs, so visibility changes are the primary
// trigger and this ticker only catches long-lived foreground tabs.
const DefaultCheckInterval = time.Minute

// SessionClient calls the bridge's session endpoints.
type SessionClient interface {
	Login(ctx context.Context, idToken, email string) (*token.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*token.TokenResponse, error)
}

// IsExpiringSoon reports whether a JWT expires within horizon of now. The
// expiry claim is read without signature verification: the holder only
// schedules its own refreshes with it, the server re-verifies everything.
// Unparseable tokens and tokens without an exp claim count as expiring.
func IsExpiringSoon(rawToken string, now time.Time, horizon time.Duration) bool {
	if rawToken == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return true
	}
	expiresAt, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return true
	}
	return expiresAt.Time.Sub(now) <= horizon
}

// Lifecycle keeps the bridge session alive: it refreshes the access token
// ahead of expiry and escalates through silent IdP auth before declaring
// the session expired.
type Lifecycle struct {
	tokens  *TokenStore
	api     SessionClient
	silent  *SilentAuthManager
	env     Environment
	bus     *Bus
	breaker *Breaker
	logger  zerolog.Logger

	horizon  time.Duration
	interval time.Duration
	nowTime  func() time.Time
}

type LifecycleOption func(*Lifecycle)

func WithExpiryHorizon(horizon time.Duration) LifecycleOption {
	return func(l *Lifecycle) { l.horizon = horizon }
}

func WithCheckInterval(interval time.Duration) LifecycleOption {
	return func(l *Lifecycle) { l.interval = interval }
}

func WithLifecycleNowTime(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.nowTime = now }
}

func NewLifecycle(tokens *TokenStore, api SessionClient, silent *SilentAuthManager, env Environment, bus *Bus, breaker *Breaker, logger zerolog.Logger, options ...LifecycleOption) (*Lifecycle, error) {
	if tokens == nil || api == nil || silent == nil || env == nil || bus == nil {
		return nil, errors.New("[NewLifecycle] tokens, api, silent, env and bus are required")
	}
	if breaker == nil {
		breaker = NewBreaker(3, 5*time.Minute)
	}

	l := &Lifecycle{
		tokens:   tokens,
		api:      api,
		silent:   silent,
		env:      env,
		bus:      bus,
		breaker:  breaker,
		logger:   logger,
		horizon:  DefaultExpiryHorizon,
		interval: DefaultCheckInterval,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Run blocks until ctx is cancelled, checking the session on every
// visibility transition and on a periodic backstop tick. Another component
// declaring the session expired (e.g. an API layer seeing a 401) clears the
// stored tokens here too.
func (l *Lifecycle) Run(ctx context.Context) {
	unsubscribe := l.bus.Subscribe(EventSessionExpired, func(Event) {
		l.tokens.Clear()
	})
	defer unsubscribe()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.env.Visible():
			l.CheckAndRefresh(ctx)
		case <-ticker.C:
			l.CheckAndRefresh(ctx)
		}
	}
}

// CheckAndRefresh refreshes the session when the access token is expiring.
// A fresh token is a no-op.
func (l *Lifecycle) CheckAndRefresh(ctx context.Context) {
	accessToken := l.tokens.AccessToken()
	if accessToken == "" {
		return
	}
	if !IsExpiringSoon(accessToken, l.nowTime(), l.horizon) {
		return
	}
	l.refresh(ctx)
}

// ProactiveRefresh forces a refresh attempt regardless of the token's
// remaining lifetime.
func (l *Lifecycle) ProactiveRefresh(ctx context.Context) {
	l.refresh(ctx)
}

func (l *Lifecycle) refresh(ctx context.Context) {
	refreshToken := l.tokens.RefreshToken()
	if refreshToken != "" && l.breaker.Allow() {
		response, err := l.api.Refresh(ctx, refreshToken)
		if err == nil {
			l.breaker.RecordSuccess()
			l.tokens.SetTokens(response.AccessToken, response.RefreshToken)
			l.bus.Publish(EventSessionRefreshed)
			return
		}
		l.breaker.RecordFailure()
		l.logger.Info().Err(err).Msg("session refresh failed, attempting silent re-auth")
	}

	// Refresh path exhausted: the IdP session may still be alive even when
	// the bridge session is not.
	result, err := l.silent.Attempt(ctx)
	if err == nil && result.Outcome == OutcomeAuthenticated && result.Auth != nil && result.Auth.Account != nil {
		response, err := l.api.Login(ctx, result.Auth.IDToken, result.Auth.Account.Username)
		if err == nil {
			l.breaker.RecordSuccess()
			l.tokens.SetTokens(response.AccessToken, response.RefreshToken)
			l.bus.Publish(EventSessionRefreshed)
			return
		}
		l.logger.Info().Err(err).Msg("re-login after silent auth failed")
	} else if err != nil {
		l.logger.Info().Err(err).Msg("silent re-auth failed")
	}

	l.tokens.Clear()
	l.bus.Publish(EventSessionExpired)
}
