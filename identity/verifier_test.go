package identity_test

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-identity-bridge/identity"
	"github.com/jrsteele09/go-identity-bridge/token/keys"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testAudience = "client-app-id"
	jwksKeyID    = "provider-key-1"
)

// providerFixture is a fake identity provider: an RSA key pair plus an HTTP
// server publishing its public half as a JWKS endpoint.
type providerFixture struct {
	keyPair *keys.KeyPair
	server  *httptest.Server
	tenant  string
}

func newProviderFixture(t *testing.T, tenant string) *providerFixture {
	t.Helper()

	keyPair, err := keys.GenerateRSAKeyPair(jwksKeyID, 2048)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/"+tenant+"/discovery/v2.0/keys", func(w http.ResponseWriter, r *http.Request) {
		jwk, err := keyPair.ToJWK()
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(keys.JWKS{Keys: []keys.JWK{*jwk}}))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &providerFixture{keyPair: keyPair, server: server, tenant: tenant}
}

func (p *providerFixture) issuer() string {
	return p.server.URL + "/" + p.tenant + "/v2.0"
}

// idToken signs an ID token with the provider key, applying overrides on top
// of a valid default claim set.
func (p *providerFixture) idToken(t *testing.T, overrides map[string]any) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":         p.issuer(),
		"aud":         testAudience,
		"sub":         testSubjectID,
		"tid":         p.tenant,
		"email":       testEmail,
		"given_name":  "Jane",
		"family_name": "Doe",
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = jwksKeyID
	signed, err := tok.SignedString(p.keyPair.PrivateKey.(*rsa.PrivateKey))
	require.NoError(t, err)
	return signed
}

func (p *providerFixture) verifier(t *testing.T) *identity.Verifier {
	t.Helper()

	v, err := identity.NewVerifier(identity.VerifierConfig{
		AuthorityBase: p.server.URL,
		Tenant:        p.tenant,
		Audience:      testAudience,
		HTTPTimeout:   5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	return v
}

func TestVerify_ValidToken(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	ident, err := verifier.Verify(context.Background(), provider.idToken(t, nil))
	require.NoError(t, err)
	require.Equal(t, testSubjectID, ident.SubjectID)
	require.Equal(t, provider.issuer(), ident.Issuer)
	require.Equal(t, "contoso", ident.Tenant)
	require.Equal(t, testEmail, ident.Email)
	require.Equal(t, "Jane", ident.GivenName)
	require.Equal(t, "Doe", ident.FamilyName)
}

func TestVerify_PreferredUsernameFallback(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	raw := provider.idToken(t, map[string]any{
		"email":              "",
		"preferred_username": testEmail,
	})

	ident, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, testEmail, ident.Email)
}

func TestVerify_TamperedSignatureRejected(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	// Token signed by a different key, presented under the published key id.
	rogue, err := keys.GenerateRSAKeyPair(jwksKeyID, 2048)
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": provider.issuer(),
		"aud": testAudience,
		"sub": testSubjectID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = jwksKeyID
	raw, err := tok.SignedString(rogue.PrivateKey.(*rsa.PrivateKey))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerify_WrongAudienceRejected(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	raw := provider.idToken(t, map[string]any{"aud": "some-other-app"})

	_, err := verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerify_WrongIssuerRejected(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	raw := provider.idToken(t, map[string]any{"iss": provider.server.URL + "/other-tenant/v2.0"})

	_, err := verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerify_ExpiredTokenRejected(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	verifier := provider.verifier(t)

	raw := provider.idToken(t, map[string]any{
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerify_UnreachableKeyEndpointFailsClosed(t *testing.T) {
	provider := newProviderFixture(t, "contoso")
	raw := provider.idToken(t, nil)

	// Build the verifier against the live server URL, then kill the server
	// before the first key fetch.
	verifier := provider.verifier(t)
	provider.server.Close()

	_, err := verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestNewVerifier_EmptyTenantFallsBackToCommon(t *testing.T) {
	v, err := identity.NewVerifier(identity.VerifierConfig{
		AuthorityBase: "https://login.microsoftonline.com",
		Audience:      testAudience,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "https://login.microsoftonline.com/common/v2.0", v.Issuer())
}

func TestNewVerifier_RequiresAudience(t *testing.T) {
	_, err := identity.NewVerifier(identity.VerifierConfig{
		AuthorityBase: "https://login.microsoftonline.com",
	}, zerolog.Nop())
	require.Error(t, err)
}
