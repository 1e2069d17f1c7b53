package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// genericTenant is the unscoped authority segment used when no tenant is
// configured. It weakens issuer pinning to "any token this authority signed
// for any tenant", so falling back to it is logged loudly.
const genericTenant = "common"

// VerifierConfig configures verification of externally issued ID tokens.
type VerifierConfig struct {
	// AuthorityBase is the provider authority URL without a tenant segment,
	// e.g. "https://login.microsoftonline.com".
	AuthorityBase string

	// Tenant scopes the issuer URL and key-set URL to a single provider
	// tenant. Empty falls back to the generic authority.
	Tenant string

	// Audience is the expected "aud" claim (the application's client id).
	Audience string

	// HTTPTimeout bounds key-set fetches. The provider is a network
	// dependency; an unresponsive provider must fail verification rather
	// than stall it.
	HTTPTimeout time.Duration

	// Now is the clock used for expiry checks (injectable for testing).
	Now func() time.Time
}

// Verifier validates externally issued ID tokens against the provider's
// published key set. Keys are fetched lazily, cached, and refreshed when an
// unknown key id is seen; every verification failure, including a failed key
// fetch, is a hard failure. An unverifiable token is never trusted.
type Verifier struct {
	issuerURL string
	tenant    string
	verifier  *oidc.IDTokenVerifier
	logger    zerolog.Logger
}

// NewVerifier builds a Verifier for the configured tenant. No network calls
// happen here; the remote key set is fetched on first use.
func NewVerifier(cfg VerifierConfig, logger zerolog.Logger) (*Verifier, error) {
	if cfg.AuthorityBase == "" {
		return nil, errors.New("[NewVerifier] authority base is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("[NewVerifier] audience is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	tenant := cfg.Tenant
	if tenant == "" {
		tenant = genericTenant
		logger.Warn().
			Str("authority", cfg.AuthorityBase).
			Msg("no provider tenant configured, falling back to the generic authority; issuer pinning is weakened")
	}

	issuerURL := fmt.Sprintf("%s/%s/v2.0", cfg.AuthorityBase, tenant)
	jwksURL := fmt.Sprintf("%s/%s/discovery/v2.0/keys", cfg.AuthorityBase, tenant)

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.HTTPTimeout
	keySetCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	oidcConfig := &oidc.Config{
		ClientID:             cfg.Audience,
		SupportedSigningAlgs: []string{oidc.RS256},
	}
	if cfg.Now != nil {
		oidcConfig.Now = cfg.Now
	}

	return &Verifier{
		issuerURL: issuerURL,
		tenant:    tenant,
		verifier:  oidc.NewVerifier(issuerURL, oidc.NewRemoteKeySet(keySetCtx, jwksURL), oidcConfig),
		logger:    logger,
	}, nil
}

// Issuer returns the issuer URL tokens are pinned to.
func (v *Verifier) Issuer() string {
	return v.issuerURL
}

// Verify checks the token's signature, issuer, audience and expiry and
// returns the normalized identity claims. Any failure, network included,
// returns an error.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Verifier.Verify] token verification failed")
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
		Tenant            string `json:"tid"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Verifier.Verify] failed to extract claims")
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}

	return &ExternalIdentity{
		SubjectID:  idToken.Subject,
		Issuer:     idToken.Issuer,
		Tenant:     claims.Tenant,
		Email:      email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
	}, nil
}
