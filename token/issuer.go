package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// statelessRefreshUse marks the degraded, store-less refresh token so it can
// never be replayed as an access token.
const statelessRefreshUse = "refresh"

// TokenResponse is the wire shape returned to clients after login or refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Expires      int    `json:"expires"` // Access token lifetime in seconds
}

// RequestMeta is the request metadata persisted with a session.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Issuer mints short-lived signed access tokens and persisted opaque refresh
// tokens. When session persistence fails it degrades to a stateless signed
// refresh token rather than failing the login; the degradation is logged as a
// warning because it masks a storage problem.
type Issuer struct {
	signer             Signer
	sessionRepo        sessions.Repo
	userRepo           users.Repo
	issuer             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	refreshTokenLength int
	nowTime            func() time.Time
	logger             zerolog.Logger
}

type IssuerOption func(*Issuer)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

func WithRefreshTokenLength(length int) IssuerOption {
	return func(i *Issuer) {
		i.refreshTokenLength = length
	}
}

func NewIssuer(signer Signer, sessionRepo sessions.Repo, userRepo users.Repo, issuer string, logger zerolog.Logger, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	if sessionRepo == nil {
		return nil, errors.New("[NewIssuer] session repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewIssuer] user repo is required")
	}

	i := &Issuer{
		signer:             signer,
		sessionRepo:        sessionRepo,
		userRepo:           userRepo,
		issuer:             issuer,
		accessTokenExpiry:  15 * time.Minute,
		refreshTokenExpiry: 7 * 24 * time.Hour,
		refreshTokenLength: 32,
		nowTime:            time.Now,
		logger:             logger,
	}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Issue mints an access token for the user and persists a new session backing
// the returned opaque refresh token.
func (i *Issuer) Issue(ctx context.Context, user *users.User, meta RequestMeta) (*TokenResponse, error) {
	accessToken, err := i.CreateAccessToken(user)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] CreateAccessToken")
	}

	refreshToken, err := i.createRefreshToken(ctx, user, meta)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] createRefreshToken")
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		Expires:      int(i.accessTokenExpiry.Seconds()),
	}, nil
}

// CreateAccessToken mints a stateless signed access token embedding the user
// id, role and the derived admin flag.
func (i *Issuer) CreateAccessToken(user *users.User) (string, error) {
	now := i.nowTime()
	claims := jwt.MapClaims{
		"iss":          i.issuer,
		"id":           user.ID,
		"role":         string(user.Role),
		"app_access":   true,
		"admin_access": user.IsAdmin(),
		"iat":          now.Unix(),
		"exp":          now.Add(i.accessTokenExpiry).Unix(),
		"jti":          uuid.New().String(),
	}
	return i.signer.Sign(claims)
}

func (i *Issuer) createRefreshToken(ctx context.Context, user *users.User, meta RequestMeta) (string, error) {
	tokenBytes := make([]byte, i.refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	now := i.nowTime()
	err := i.sessionRepo.Upsert(ctx, &sessions.Session{
		Token:     tokenStr,
		UserID:    user.ID,
		ExpiresAt: now.Add(i.refreshTokenExpiry),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	})
	if err == nil {
		return tokenStr, nil
	}

	// Degraded mode: the login still succeeds with a stateless signed refresh
	// token, but the session row is lost, so admin revocation cannot reach it.
	i.logger.Warn().Err(err).Str("user_id", user.ID).
		Msg("session persistence failed, falling back to stateless refresh token")
	return i.createStatelessRefreshToken(user)
}

func (i *Issuer) createStatelessRefreshToken(user *users.User) (string, error) {
	now := i.nowTime()
	claims := jwt.MapClaims{
		"iss":       i.issuer,
		"id":        user.ID,
		"token_use": statelessRefreshUse,
		"iat":       now.Unix(),
		"exp":       now.Add(i.refreshTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "sign stateless refresh token")
	}
	return signed, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token
// itself is not rotated; it stays valid until expiry, logout, or revocation.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	userID, err := i.resolveRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := i.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRefreshToken, "user not found for refresh token")
	}
	if !user.IsActive() {
		return nil, errors.Wrap(ErrInvalidRefreshToken, "user is inactive")
	}

	accessToken, err := i.CreateAccessToken(user)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Refresh] CreateAccessToken")
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		Expires:      int(i.accessTokenExpiry.Seconds()),
	}, nil
}

// resolveRefreshToken returns the user id behind a refresh token, checking
// the session store first and the stateless fallback format second.
func (i *Issuer) resolveRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	session, err := i.sessionRepo.Get(ctx, refreshToken)
	if err == nil {
		if session.Expired(i.nowTime()) {
			_ = i.sessionRepo.Delete(ctx, refreshToken)
			return "", ErrRefreshTokenExpired
		}
		return session.UserID, nil
	}
	if !errors.Is(err, sessions.ErrNotFound) {
		return "", errors.Wrap(err, "[Issuer.resolveRefreshToken] session lookup")
	}

	return i.verifyStatelessRefreshToken(refreshToken)
}

func (i *Issuer) verifyStatelessRefreshToken(refreshToken string) (string, error) {
	parsed, err := jwt.NewParser(
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(i.nowTime),
		jwt.WithIssuer(i.issuer),
	).Parse(refreshToken, i.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidRefreshToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	if use, _ := claims["token_use"].(string); use != statelessRefreshUse {
		return "", ErrInvalidRefreshToken
	}
	userID, _ := claims["id"].(string)
	if userID == "" {
		return "", ErrInvalidRefreshToken
	}
	return userID, nil
}

// Revoke deletes the session behind a refresh token. Revoking an unknown or
// stateless token is a no-op.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	err := i.sessionRepo.Delete(ctx, refreshToken)
	if err != nil && !errors.Is(err, sessions.ErrNotFound) {
		return errors.Wrap(err, "[Issuer.Revoke] delete session")
	}
	return nil
}
