package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the credential authenticator behind the identity provider.
type AuthMode string

const (
	// AuthModeLocal keeps users and bcrypt hashes in Postgres.
	AuthModeLocal AuthMode = "local"
	// AuthModeOAuth uses an OIDC password grant.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses config-driven in-memory users (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, oauth, mock)", v)
	}
}

// Default role and session timings.
const (
	DefaultRoleTimeout       = 5 * time.Second
	DefaultRoleRetryDelay    = 500 * time.Millisecond
	DefaultSessionTTL        = 8 * time.Hour
	DefaultRefreshWindow     = 15 * time.Minute
	DefaultClientIdleTimeout = 30 * time.Minute

	devTokenSecret = "storefront-dev-secret-change-me"
)

// OAuthConfig contains OIDC password-grant configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"storefront"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// EmailExpr is a JMESPath expression evaluated against the ID token claims.
	EmailExpr string `env:"EMAIL_EXPR" envDefault:"email"`
	// MetadataExprs maps metadata keys to JMESPath expressions,
	// e.g. OAUTH_METADATA_EXPRS="name:name;groups:groups".
	MetadataExprs map[string]string `env:"METADATA_EXPRS" envSeparator:";" envKeyValSeparator:":"`
}

// Complete reports whether the provider can be contacted.
func (o OAuthConfig) Complete() bool {
	return o.DiscoveryURL != "" && o.ClientID != "" && o.ClientSecret != ""
}

// DevAuthConfig lists the accounts served when AUTH_MODE=mock, as
// "email:password[:name]" entries separated by commas.
type DevAuthConfig struct {
	Users string `env:"USERS" envDefault:"admin@storefront.local:admin,shopper@storefront.local:shopper"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authenticator backs sign-in.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminEmail is the single administrator identity. It is matched
	// case-insensitively and never needs a role row.
	AdminEmail string `env:"AUTH_ADMIN_EMAIL" envDefault:"admin@storefront.local"`

	// AdminPassword is the first-run password used by provision-admin.
	AdminPassword string `env:"AUTH_ADMIN_PASSWORD"`

	RoleTimeout    time.Duration `env:"AUTH_ROLE_TIMEOUT"     envDefault:"5s"`
	RoleRetryDelay time.Duration `env:"AUTH_ROLE_RETRY_DELAY" envDefault:"500ms"`

	SessionTTL    time.Duration `env:"AUTH_SESSION_TTL"    envDefault:"8h"`
	RefreshWindow time.Duration `env:"AUTH_REFRESH_WINDOW" envDefault:"15m"`

	// TokenSecret signs provider access tokens. Required outside dev mode.
	TokenSecret string `env:"AUTH_TOKEN_SECRET"`

	ClientIdleTimeout time.Duration `env:"AUTH_CLIENT_IDLE_TIMEOUT" envDefault:"30m"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize(isDev bool) {
	if a.Mode == "" {
		a.Mode = AuthModeLocal
	}
	a.AdminEmail = strings.ToLower(strings.TrimSpace(a.AdminEmail))

	if a.RoleTimeout <= 0 {
		a.RoleTimeout = DefaultRoleTimeout
	}
	if a.RoleRetryDelay < 0 || a.RoleRetryDelay >= a.RoleTimeout {
		a.RoleRetryDelay = DefaultRoleRetryDelay
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = DefaultSessionTTL
	}
	if a.RefreshWindow <= 0 || a.RefreshWindow >= a.SessionTTL {
		a.RefreshWindow = min(DefaultRefreshWindow, a.SessionTTL/4)
	}
	if a.ClientIdleTimeout <= 0 {
		a.ClientIdleTimeout = DefaultClientIdleTimeout
	}

	a.TokenSecret = strings.TrimSpace(a.TokenSecret)
	if a.TokenSecret == "" && isDev {
		a.TokenSecret = devTokenSecret
	}
}

// Validate reports settings that would leave authentication unusable.
func (a *AuthConfig) Validate() error {
	if a.TokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required")
	}
	if a.Mode == AuthModeOAuth && !a.OAuth.Complete() {
		return fmt.Errorf("AUTH_MODE=oauth requires OAUTH_DISCOVERY_URL, OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET")
	}
	return nil
}
