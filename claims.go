package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed payload of a session token: subject identity,
// a group and profile snapshot taken at issuance, the expiry instant, and
// the later renewal deadline. The snapshot may legitimately diverge from
// the store until the token is renewed.
//
// Groups is serialized without omitempty: a subject with no memberships
// still carries an empty groups claim, which is distinct from a foreign
// token that omits the claim entirely.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username  string           `json:"username,omitempty"`
	Groups    []string         `json:"groups"`
	RenewBy   *jwt.NumericDate `json:"renew_by,omitempty"`
	Email     string           `json:"email,omitempty"`
	FirstName string           `json:"first_name,omitempty"`
	LastName  string           `json:"last_name,omitempty"`
}

// Subject returns the subject claim, falling back to the username claim
// for tokens minted by older releases.
func (c *SessionClaims) Subject() string {
	if c.RegisteredClaims.Subject != "" {
		return c.RegisteredClaims.Subject
	}
	return c.Username
}

// GroupNames returns the group snapshot embedded in the token.
func (c *SessionClaims) GroupNames() []string {
	return c.Groups
}

// HasGroups reports whether the token carries a groups claim at all.
// An empty claim still counts; only its absence returns false.
func (c *SessionClaims) HasGroups() bool {
	return c.Groups != nil
}

// InGroup checks the cached snapshot, not the live store.
func (c *SessionClaims) InGroup(name string) bool {
	for _, g := range c.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// RenewalDeadline returns the latest instant at which this token may still
// be exchanged for a fresh one without re-authentication.
func (c *SessionClaims) RenewalDeadline() time.Time {
	if c.RenewBy != nil {
		return c.RenewBy.Time
	}
	return time.Time{}
}

// IssuedTime returns the issued at time
func (c *SessionClaims) IssuedTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
