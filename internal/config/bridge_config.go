package config

import (
	"strings"
	"time"
)

// BridgeConfig holds everything the identity bridge needs to federate the
// external OIDC provider with the internal token system.
type BridgeConfig interface {
	GetProviderName() string
	GetAuthorityBase() string
	GetProviderTenant() string
	GetProviderAudience() string
	GetProviderTimeout() time.Duration

	GetTokenIssuer() string
	GetSigningSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int

	GetInstitutionalDomains() []string
}

type Bridge struct{}

var _ BridgeConfig = Bridge{}

func (Bridge) GetProviderName() string {
	return GetEnv("PROVIDER_NAME", "azuread")
}

func (Bridge) GetAuthorityBase() string {
	return GetEnv("PROVIDER_AUTHORITY", "https://login.microsoftonline.com")
}

// GetProviderTenant returns the provider tenant. An empty value makes the
// verifier fall back to the unscoped "common" authority, which weakens issuer
// pinning; the verifier logs a warning when that happens.
func (Bridge) GetProviderTenant() string {
	return GetEnv("PROVIDER_TENANT", "")
}

func (Bridge) GetProviderAudience() string {
	return GetEnv("PROVIDER_AUDIENCE", "")
}

func (Bridge) GetProviderTimeout() time.Duration {
	return 10 * time.Second
}

func (Bridge) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "go-identity-bridge")
}

func (Bridge) GetSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", "")
}

func (Bridge) GetAccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func (Bridge) GetRefreshTokenExpiry() time.Duration {
	return 7 * 24 * time.Hour // 7 days
}

func (Bridge) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Bridge) GetInstitutionalDomains() []string {
	domains := GetEnv("INSTITUTIONAL_DOMAINS", "")
	if domains == "" {
		return nil
	}
	parts := strings.Split(domains, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
