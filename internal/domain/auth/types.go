package auth

// Package auth contains domain-level types for authentication, sessions and roles.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents a persisted privilege level.
// Keep string form for easy persistence in the role store.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Capability is the privilege a page requires.
type Capability string

const (
	// CapabilityNone requires an authenticated user but no particular role.
	CapabilityNone   Capability = "none"
	CapabilityClient Capability = "client"
	CapabilityAdmin  Capability = "admin"
)

// User is the principal the identity provider attaches to a session.
type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session is the provider-issued credential bundle for a signed-in user.
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token"`
	User        User      `json:"user"`
	Device      string    `json:"device,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// UserRoles is the derived privilege shape. Admin implies client.
type UserRoles struct {
	IsAdmin  bool `json:"is_admin"`
	IsClient bool `json:"is_client"`
}

// Normalize returns r with the admin-implies-client invariant applied.
func (r UserRoles) Normalize() UserRoles {
	if r.IsAdmin {
		r.IsClient = true
	}
	return r
}

// Satisfies reports whether the roles meet the given capability.
// CapabilityNone is satisfied by any authenticated user.
func (r UserRoles) Satisfies(c Capability) bool {
	switch c {
	case CapabilityNone:
		return true
	case CapabilityClient:
		return r.IsClient || r.IsAdmin
	case CapabilityAdmin:
		return r.IsAdmin
	default:
		return false
	}
}

// RolesFromRows derives UserRoles from persisted role rows.
func RolesFromRows(rows []Role) UserRoles {
	var out UserRoles
	for _, r := range rows {
		switch r {
		case RoleAdmin:
			out.IsAdmin = true
		case RoleClient:
			out.IsClient = true
		}
	}
	return out.Normalize()
}

// NormalizeEmail lowercases and trims an email for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuthEventType enumerates provider session-change events.
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventOther          AuthEventType = "OTHER"
)

// ParseAuthEventType maps unknown values to EventOther.
func ParseAuthEventType(s string) AuthEventType {
	switch t := AuthEventType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed:
		return t
	default:
		return EventOther
	}
}

// AuthEvent is a single session-change notification from the identity provider.
// Session is nil for EventSignedOut.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	Session    *Session      `json:"session,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// RoleAssignment is one persisted (user, role) row.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRecord is a directory entry with its stored credential.
type UserRecord struct {
	User
	PasswordHash string `json:"-"`
}
