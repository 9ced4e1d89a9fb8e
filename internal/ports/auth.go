package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/storefront/internal/domain/auth"
)

// Credentials carries an email/password pair for password sign-in.
type Credentials struct {
	Email    string
	Password string
}

// SignUpInput groups parameters for registering a new user.
type SignUpInput struct {
	Email    string
	Password string
	Metadata map[string]string
}

// Subscription is a lazy sequence of provider session-change events.
// Events is closed after Unsubscribe or when the underlying transport ends.
type Subscription interface {
	Events() <-chan domainauth.AuthEvent
	Unsubscribe()
}

// IdentityProvider is one browser client's handle on the external identity provider.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, in Credentials) (domainauth.User, error)
	SignUp(ctx context.Context, in SignUpInput) (domainauth.User, error)
	SignOut(ctx context.Context) error

	// GetSession returns the current session or nil when signed out.
	GetSession(ctx context.Context) (*domainauth.Session, error)
	// GetUser returns the signed-in user or nil when signed out.
	GetUser(ctx context.Context) (*domainauth.User, error)

	Subscribe(ctx context.Context) (Subscription, error)
	UpdatePassword(ctx context.Context, newPassword string) error
}

// ClientInfo identifies the browser client a provider handle is bound to.
type ClientInfo struct {
	ID        string
	UserAgent string
}

// IdentityBroker hands out per-client provider handles.
type IdentityBroker interface {
	ForClient(c ClientInfo) IdentityProvider
}

// Authenticator verifies credentials against a user directory.
type Authenticator interface {
	Authenticate(ctx context.Context, in Credentials) (domainauth.User, error)
	Register(ctx context.Context, in SignUpInput) (domainauth.User, error)
	UpdatePassword(ctx context.Context, userID, newPassword string) error
}

// SessionRepository persists provider sessions keyed by client id.
type SessionRepository interface {
	Save(ctx context.Context, clientID string, sess domainauth.Session) error
	Get(ctx context.Context, clientID string) (domainauth.Session, error)
	Delete(ctx context.Context, clientID string) error
}

// EventBus carries session-change events to the client they belong to.
type EventBus interface {
	Publish(ctx context.Context, clientID string, ev domainauth.AuthEvent) error
	Subscribe(ctx context.Context, clientID string) (Subscription, error)
}

// AdminMatcher recognises the configured administrator identity.
type AdminMatcher interface {
	IsAdminEmail(email string) bool
}

// Navigator records navigation decisions for a browser client.
type Navigator interface {
	// Navigate requests a client-side route change.
	Navigate(path string)
	// Reload requests a full page navigation that discards in-memory state.
	Reload(path string)
	// CurrentPath returns the route the client is on.
	CurrentPath() string
}

// NoticeLevel categorises user-facing notices.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking message shown to the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notifier surfaces notices to a browser client.
type Notifier interface {
	Notify(n Notice)
}
