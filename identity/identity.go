package identity

// ExternalIdentity is the normalized set of claims extracted from a verified
// provider ID token. It is produced fresh for every login attempt and never
// persisted as-is; the resolver maps it onto a local user record.
type ExternalIdentity struct {
	SubjectID  string // Provider-scoped unique user identifier (sub)
	Issuer     string // Issuer URL the token was verified against
	Tenant     string // Provider tenant the token was issued under
	Email      string // Email claim (preferred_username fallback)
	GivenName  string
	FamilyName string
}
