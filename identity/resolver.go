package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-bridge/users"
	"github.com/pkg/errors"
)

var (
	// ErrEmailMismatch means the verified token's email claim does not match
	// the email the caller asked to log in as. A valid token for one account
	// can never be used to claim another.
	ErrEmailMismatch = errors.New("token email does not match requested email")

	// ErrInactiveAccount means a matching local user exists but is inactive.
	ErrInactiveAccount = errors.New("account is inactive")
)

// Resolver maps a verified external identity onto a local user record,
// creating or updating idempotently. Repeated resolutions of the same subject
// id always land on the same user row; provider data only ever fills fields
// that are currently empty.
type Resolver struct {
	userRepo             users.Repo
	institutionalDomains []string
	nowTime              func() time.Time
}

type ResolverOption func(*Resolver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

// WithInstitutionalDomains sets the email domains for which the
// domain-derived email field is populated on first provisioning.
func WithInstitutionalDomains(domains []string) ResolverOption {
	return func(r *Resolver) {
		r.institutionalDomains = domains
	}
}

func NewResolver(userRepo users.Repo, options ...ResolverOption) (*Resolver, error) {
	if userRepo == nil {
		return nil, errors.New("[NewResolver] user repo is required")
	}

	resolver := &Resolver{
		userRepo: userRepo,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(resolver)
	}
	return resolver, nil
}

// Resolve returns the local user for the verified identity. requestedEmail is
// the email the caller explicitly asked to log in as; it must match the
// token's own email claim case-insensitively.
func (r *Resolver) Resolve(ctx context.Context, ident *ExternalIdentity, requestedEmail string) (*users.User, error) {
	if ident == nil || ident.SubjectID == "" {
		return nil, errors.New("[Resolver.Resolve] identity missing subject id")
	}
	if ident.Email == "" || !strings.EqualFold(ident.Email, requestedEmail) {
		return nil, ErrEmailMismatch
	}

	// Subject id first, then email
	user, err := r.userRepo.GetByExternalID(ctx, ident.SubjectID)
	if errors.Is(err, users.ErrNotFound) {
		user, err = r.userRepo.GetByEmail(ctx, ident.Email)
	}
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return nil, errors.Wrap(err, "[Resolver.Resolve] user lookup")
	}

	if user == nil {
		return r.provision(ctx, ident)
	}
	return r.refresh(ctx, user, ident)
}

// provision creates a new active user from the identity. A concurrent first
// login can win the insert race; the unique constraint on the external
// identifier surfaces that, and the loser reuses the winner's row.
func (r *Resolver) provision(ctx context.Context, ident *ExternalIdentity) (*users.User, error) {
	now := r.nowTime()
	user := &users.User{
		ID:                 uuid.New().String(),
		Email:              ident.Email,
		FirstName:          ident.GivenName,
		LastName:           ident.FamilyName,
		ExternalIdentifier: ident.SubjectID,
		Role:               users.RoleMember,
		Status:             users.StatusActive,
		DateJoined:         now,
		LastLogin:          now,
	}
	if r.isInstitutionalEmail(ident.Email) {
		user.DomainDerivedEmail = ident.Email
	}

	err := r.userRepo.Insert(ctx, user)
	if errors.Is(err, users.ErrDuplicateExternalID) {
		existing, getErr := r.userRepo.GetByExternalID(ctx, ident.SubjectID)
		if getErr != nil {
			return nil, errors.Wrap(getErr, "[Resolver.provision] re-fetch after insert conflict")
		}
		return r.refresh(ctx, existing, ident)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.provision] insert user")
	}
	return user, nil
}

// refresh applies fill-if-empty updates to a matched user. Fields already set
// by the user or an admin are never overwritten with provider data.
func (r *Resolver) refresh(ctx context.Context, user *users.User, ident *ExternalIdentity) (*users.User, error) {
	if !user.IsActive() {
		return nil, ErrInactiveAccount
	}

	if user.ExternalIdentifier == "" {
		user.ExternalIdentifier = ident.SubjectID
	}
	if user.FirstName == "" {
		user.FirstName = ident.GivenName
	}
	if user.LastName == "" {
		user.LastName = ident.FamilyName
	}
	if user.DomainDerivedEmail == "" && r.isInstitutionalEmail(ident.Email) {
		user.DomainDerivedEmail = ident.Email
	}
	user.LastLogin = r.nowTime()

	if err := r.userRepo.Update(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Resolver.refresh] update user")
	}
	return user, nil
}

func (r *Resolver) isInstitutionalEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range r.institutionalDomains {
		if domain == strings.ToLower(d) {
			return true
		}
	}
	return false
}
