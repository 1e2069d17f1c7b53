package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-identity-bridge/identity"
	"github.com/jrsteele09/go-identity-bridge/token"
	"github.com/jrsteele09/go-identity-bridge/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TokenVerifier validates an externally issued ID token and returns the
// normalized identity claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*identity.ExternalIdentity, error)
}

// IdentityResolver maps a verified identity onto a local user record.
type IdentityResolver interface {
	Resolve(ctx context.Context, ident *identity.ExternalIdentity, requestedEmail string) (*users.User, error)
}

// SessionIssuer mints access tokens and persisted refresh tokens.
type SessionIssuer interface {
	Issue(ctx context.Context, user *users.User, meta token.RequestMeta) (*token.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*token.TokenResponse, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// LoginRequest carries one federated login attempt.
type LoginRequest struct {
	Token     string // Externally issued ID token
	Email     string // Email the caller is asking to log in as
	IP        string
	UserAgent string
}

// Service is the single authoritative login pipeline: verify the provider
// token, resolve the local user, issue a session. Repeated calls with the
// same token are idempotent at the user level; every call mints a fresh
// session.
type Service struct {
	verifier TokenVerifier
	resolver IdentityResolver
	issuer   SessionIssuer
	logger   zerolog.Logger
}

func NewService(verifier TokenVerifier, resolver IdentityResolver, issuer SessionIssuer, logger zerolog.Logger) (*Service, error) {
	if verifier == nil {
		return nil, errors.New("[NewService] verifier is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewService] resolver is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] issuer is required")
	}

	return &Service{
		verifier: verifier,
		resolver: resolver,
		issuer:   issuer,
		logger:   logger,
	}, nil
}

// Login runs the full bridge pipeline for one login attempt.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*token.TokenResponse, error) {
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Email) == "" {
		return nil, InvalidPayloadErr
	}

	ident, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		// Fail closed: an unverifiable token, for whatever reason, is an
		// invalid one. The cause stays in the logs.
		s.logger.Info().Err(err).Msg("token verification failed")
		return nil, InvalidCredentialsErr
	}

	user, err := s.resolver.Resolve(ctx, ident, req.Email)
	switch {
	case errors.Is(err, identity.ErrEmailMismatch):
		s.logger.Info().Str("subject", ident.SubjectID).Msg("token email mismatch")
		return nil, InvalidCredentialsErr
	case errors.Is(err, identity.ErrInactiveAccount):
		return nil, InactiveAccountErr
	case err != nil:
		return nil, errors.Wrap(err, "[Service.Login] resolve identity")
	}

	response, err := s.issuer.Issue(ctx, user, token.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] issue session")
	}

	s.logger.Info().Str("user_id", user.ID).Msg("federated login succeeded")
	return response, nil
}

// Refresh mints a new access token from a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, InvalidPayloadErr
	}

	response, err := s.issuer.Refresh(ctx, refreshToken)
	switch {
	case errors.Is(err, token.ErrInvalidRefreshToken), errors.Is(err, token.ErrRefreshTokenExpired):
		return nil, InvalidRefreshTokenErr
	case err != nil:
		return nil, errors.Wrap(err, "[Service.Refresh] refresh")
	}
	return response, nil
}

// Logout invalidates the session behind a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return InvalidPayloadErr
	}
	if err := s.issuer.Revoke(ctx, refreshToken); err != nil {
		return errors.Wrap(err, "[Service.Logout] revoke")
	}
	return nil
}
