package users

import "time"

// RoleType represents a user's application role.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"
	RoleMember RoleType = "member"
)

// StatusType represents the account status. Inactive users can never be
// issued a session.
type StatusType string

const (
	StatusActive   StatusType = "active"
	StatusInactive StatusType = "inactive"
)

// User is the local user record a federated identity resolves to.
// At most one User exists per ExternalIdentifier; the storage layer enforces
// this with a unique constraint so concurrent first logins cannot create
// duplicates.
type User struct {
	ID                 string     `json:"id,omitempty"`                  // Unique identifier for the user
	Email              string     `json:"email,omitempty"`               // User's email address
	FirstName          string     `json:"first_name,omitempty"`          // First name of the user
	LastName           string     `json:"last_name,omitempty"`           // Last name of the user
	ExternalIdentifier string     `json:"external_identifier,omitempty"` // Subject id at the external identity provider
	DomainDerivedEmail string     `json:"domain_email,omitempty"`        // Email set when the address belongs to a recognized institutional domain
	Role               RoleType   `json:"role,omitempty"`
	Status             StatusType `json:"status,omitempty"`
	DateJoined         time.Time  `json:"date_joined,omitempty"` // Date and time when the user was first provisioned
	LastLogin          time.Time  `json:"last_login,omitempty"`  // Last time the user logged in
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// IsAdmin returns true if the user has admin privileges
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
