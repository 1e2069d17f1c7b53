package auth

import "errors"

var (
	// InvalidPayloadErr covers missing token/email in a login request.
	InvalidPayloadErr = errors.New("invalid payload")

	// InvalidCredentialsErr covers every verification failure: bad signature,
	// issuer, audience, expiry, an unreachable key endpoint (fail-closed),
	// and email mismatch. Callers get no detail about which check failed.
	InvalidCredentialsErr = errors.New("invalid credentials")

	// InactiveAccountErr means the matched local user is inactive.
	InactiveAccountErr = errors.New("account is inactive")

	// InvalidRefreshTokenErr means the refresh token is unknown or expired.
	InvalidRefreshTokenErr = errors.New("invalid refresh token")
)
