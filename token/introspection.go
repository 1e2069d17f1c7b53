package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AccessTokenClaims is the decoded view of a bridge-issued access token.
// Active is false when the token failed verification or has expired; other
// fields may not be populated in that case.
type AccessTokenClaims struct {
	Active      bool
	UserID      string
	Role        string
	AppAccess   bool
	AdminAccess bool
	Issuer      string
	ExpiresAt   time.Time
}

// Inspector validates bridge-issued access tokens on behalf of the features
// that consume the session (auth middleware, resource handlers).
type Inspector struct {
	signer  Signer
	issuer  string
	nowTime func() time.Time
}

type InspectorOption func(*Inspector)

func WithInspectorNowTime(nowFunc func() time.Time) InspectorOption {
	return func(i *Inspector) {
		i.nowTime = nowFunc
	}
}

func NewInspector(signer Signer, issuer string, options ...InspectorOption) *Inspector {
	inspector := &Inspector{
		signer:  signer,
		issuer:  issuer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(inspector)
	}
	return inspector
}

// Introspect verifies the token's signature and claims. An invalid or expired
// token yields Active=false, not an error; errors are reserved for malformed
// input.
func (i *Inspector) Introspect(rawToken string) (*AccessTokenClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &AccessTokenClaims{Active: false}, nil
	}

	parsed, err := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithTimeFunc(i.nowTime),
		jwtlib.WithIssuer(i.issuer),
	).Parse(rawToken, i.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return &AccessTokenClaims{Active: false}, nil
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return &AccessTokenClaims{Active: false}, errors.New("error extracting claims from token")
	}

	// A stateless refresh token carries a valid signature but must never be
	// accepted as an access token.
	if use, _ := claims["token_use"].(string); use != "" {
		return &AccessTokenClaims{Active: false}, nil
	}

	userID, _ := claims["id"].(string)
	role, _ := claims["role"].(string)
	appAccess, _ := claims["app_access"].(bool)
	adminAccess, _ := claims["admin_access"].(bool)
	iss, _ := claims["iss"].(string)
	exp, _ := claims["exp"].(float64)

	return &AccessTokenClaims{
		Active:      true,
		UserID:      userID,
		Role:        role,
		AppAccess:   appAccess,
		AdminAccess: adminAccess,
		Issuer:      iss,
		ExpiresAt:   time.Unix(int64(exp), 0),
	}, nil
}
