package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	sessionrepofakes "github.com/jrsteele09/go-identity-bridge/sessions/repofakes"
	"github.com/jrsteele09/go-identity-bridge/token"
	"github.com/jrsteele09/go-identity-bridge/users"
	userrepofake "github.com/jrsteele09/go-identity-bridge/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	secretStr  = "test-signing-secret"
	testIssuer = "go-identity-bridge"
	testUserID = "user-1"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type issuerFixture struct {
	userRepo    *userrepofake.FakeUserRepo
	sessionRepo *sessionrepofakes.FakeSessionRepo
	signer      token.Signer
	issuer      *token.Issuer
	now         time.Time
}

func setupIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()

	f := &issuerFixture{
		userRepo:    userrepofake.NewFakeUserRepo(),
		sessionRepo: sessionrepofakes.NewFakeSessionRepo(),
		signer:      token.NewHMACSigner(secretStr),
		now:         fixedNow,
	}

	issuer, err := token.NewIssuer(f.signer, f.sessionRepo, f.userRepo, testIssuer, zerolog.Nop(),
		token.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.issuer = issuer
	return f
}

func (f *issuerFixture) createUser(t *testing.T, role users.RoleType, status users.StatusType) *users.User {
	t.Helper()

	user := &users.User{
		ID:     testUserID,
		Email:  "jane.doe@example.com",
		Role:   role,
		Status: status,
	}
	require.NoError(t, f.userRepo.Insert(context.Background(), user))
	return user
}

func (f *issuerFixture) parseClaims(t *testing.T, rawToken string) jwt.MapClaims {
	t.Helper()

	parsed, err := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return f.now }),
	).Parse(rawToken, f.signer.GetVerificationKey)
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestIssue_AccessTokenClaims(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleAdmin, users.StatusActive)

	response, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{IP: "10.0.0.1", UserAgent: "test-agent"})
	require.NoError(t, err)
	require.Equal(t, "bearer", response.TokenType)
	require.Equal(t, int((15 * time.Minute).Seconds()), response.Expires)

	claims := f.parseClaims(t, response.AccessToken)
	require.Equal(t, testIssuer, claims["iss"])
	require.Equal(t, testUserID, claims["id"])
	require.Equal(t, "admin", claims["role"])
	require.Equal(t, true, claims["app_access"])
	require.Equal(t, true, claims["admin_access"])
	require.NotEmpty(t, claims["jti"])
	require.Equal(t, float64(fixedNow.Unix()), claims["iat"])
	require.Equal(t, float64(fixedNow.Add(15*time.Minute).Unix()), claims["exp"])
}

func TestIssue_MemberHasNoAdminAccess(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	response, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	claims := f.parseClaims(t, response.AccessToken)
	require.Equal(t, "member", claims["role"])
	require.Equal(t, false, claims["admin_access"])
}

func TestIssue_PersistsSession(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	response, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{IP: "10.0.0.1", UserAgent: "test-agent"})
	require.NoError(t, err)
	// 32 random bytes, hex encoded.
	require.Len(t, response.RefreshToken, 64)

	session, err := f.sessionRepo.Get(context.Background(), response.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IP)
	require.Equal(t, "test-agent", session.UserAgent)
	require.Equal(t, fixedNow.Add(7*24*time.Hour), session.ExpiresAt)
}

func TestIssue_SessionStoreFailureFallsBackToStatelessToken(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)
	f.sessionRepo.FailUpserts = true

	response, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)
	require.Zero(t, f.sessionRepo.Count())

	// The fallback refresh token is a signed JWT marked as refresh-use.
	claims := f.parseClaims(t, response.RefreshToken)
	require.Equal(t, "refresh", claims["token_use"])
	require.Equal(t, testUserID, claims["id"])
}

func TestRefresh_MintsNewAccessToken(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)

	refreshed, err := f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, issued.AccessToken, refreshed.AccessToken)
	// No rotation: the refresh token stays the same.
	require.Equal(t, issued.RefreshToken, refreshed.RefreshToken)

	claims := f.parseClaims(t, refreshed.AccessToken)
	require.Equal(t, float64(f.now.Add(15*time.Minute).Unix()), claims["exp"])
}

func TestRefresh_UnknownTokenRejected(t *testing.T) {
	f := setupIssuerFixture(t)

	_, err := f.issuer.Refresh(context.Background(), "no-such-token")
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRefresh_ExpiredSessionDeletedAndRejected(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	f.now = f.now.Add(8 * 24 * time.Hour)

	_, err = f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.ErrorIs(t, err, token.ErrRefreshTokenExpired)
	require.Zero(t, f.sessionRepo.Count())
}

func TestRefresh_InactiveUserRejected(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	user.Status = users.StatusInactive
	require.NoError(t, f.userRepo.Update(context.Background(), user))

	_, err = f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRefresh_StatelessFallbackToken(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)
	f.sessionRepo.FailUpserts = true

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	f.sessionRepo.FailUpserts = false
	f.now = f.now.Add(time.Hour)

	refreshed, err := f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
}

func TestRefresh_ExpiredStatelessTokenRejected(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)
	f.sessionRepo.FailUpserts = true

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	f.sessionRepo.FailUpserts = false
	f.now = f.now.Add(8 * 24 * time.Hour)

	_, err = f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRefresh_AccessTokenNotAcceptedAsRefreshToken(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	accessToken, err := f.issuer.CreateAccessToken(user)
	require.NoError(t, err)

	_, err = f.issuer.Refresh(context.Background(), accessToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRevoke_DeletesSession(t *testing.T) {
	f := setupIssuerFixture(t)
	user := f.createUser(t, users.RoleMember, users.StatusActive)

	issued, err := f.issuer.Issue(context.Background(), user, token.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, f.issuer.Revoke(context.Background(), issued.RefreshToken))
	require.Zero(t, f.sessionRepo.Count())

	_, err = f.issuer.Refresh(context.Background(), issued.RefreshToken)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

func TestRevoke_UnknownTokenIsNoOp(t *testing.T) {
	f := setupIssuerFixture(t)
	require.NoError(t, f.issuer.Revoke(context.Background(), "no-such-token"))
}
