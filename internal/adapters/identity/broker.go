// Package identity turns a credential Authenticator into per-browser identity
// providers that issue access tokens, persist sessions and publish session
// change events.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

const (
	defaultSessionTTL    = 8 * time.Hour
	defaultRefreshWindow = 15 * time.Minute
)

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	Authenticator ports.Authenticator // required
	Sessions      ports.SessionRepository
	Events        ports.EventBus
	Tokens        *TokenIssuer

	SessionTTL    time.Duration
	RefreshWindow time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Broker hands out a ClientProvider per browser client.
type Broker struct {
	auth     ports.Authenticator
	sessions ports.SessionRepository
	events   ports.EventBus
	tokens   *TokenIssuer

	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

var _ ports.IdentityBroker = (*Broker)(nil)

// NewBroker constructs a Broker. It panics if a required dependency is missing.
func NewBroker(opts BrokerOptions) *Broker {
	if opts.Authenticator == nil {
		panic("identity.NewBroker: Authenticator is required")
	}
	if opts.Sessions == nil {
		panic("identity.NewBroker: Sessions is required")
	}
	if opts.Events == nil {
		panic("identity.NewBroker: Events is required")
	}
	if opts.Tokens == nil {
		panic("identity.NewBroker: Tokens is required")
	}

	b := &Broker{
		auth:          opts.Authenticator,
		sessions:      opts.Sessions,
		events:        opts.Events,
		tokens:        opts.Tokens,
		ttl:           opts.SessionTTL,
		refreshWindow: opts.RefreshWindow,
		now:           opts.Now,
		logger:        opts.Logger,
	}
	if b.ttl <= 0 {
		b.ttl = defaultSessionTTL
	}
	if b.refreshWindow <= 0 || b.refreshWindow >= b.ttl {
		b.refreshWindow = min(defaultRefreshWindow, b.ttl/4)
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = slog.Default().With("component", "identity_broker")
	}
	return b
}

// ForClient returns the provider handle for one browser client.
func (b *Broker) ForClient(c ports.ClientInfo) ports.IdentityProvider {
	return &ClientProvider{
		broker:   b,
		clientID: c.ID,
		device:   DeviceLabel(c.UserAgent),
		logger:   b.logger.With("client_id", c.ID),
	}
}

// ClientProvider is the identity provider as seen by a single browser client.
type ClientProvider struct {
	broker   *Broker
	clientID string
	device   string
	logger   *slog.Logger
}

var _ ports.IdentityProvider = (*ClientProvider)(nil)

// SignInWithPassword verifies credentials, stores a new session and publishes SIGNED_IN.
// Rejected credentials come back as the authenticator's InvalidCredentials error.
func (p *ClientProvider) SignInWithPassword(ctx context.Context, in ports.Credentials) (domainauth.User, error) {
	user, err := p.broker.auth.Authenticate(ctx, in)
	if err != nil {
		return domainauth.User{}, err
	}

	now := p.broker.now()
	sess := domainauth.Session{
		ID:        uuid.NewString(),
		User:      user,
		Device:    p.device,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.broker.ttl),
	}
	if sess.AccessToken, err = p.broker.tokens.Issue(p.clientID, sess); err != nil {
		return domainauth.User{}, err
	}
	if err = p.broker.sessions.Save(ctx, p.clientID, sess); err != nil {
		return domainauth.User{}, fmt.Errorf("save session: %w", err)
	}

	p.logger.InfoContext(ctx, "signed in", "user_id", user.ID, "device", sess.Device)
	p.publish(ctx, domainauth.AuthEvent{Type: domainauth.EventSignedIn, Session: &sess, OccurredAt: now})
	return user, nil
}

// SignUp registers a user without signing them in.
func (p *ClientProvider) SignUp(ctx context.Context, in ports.SignUpInput) (domainauth.User, error) {
	return p.broker.auth.Register(ctx, in)
}

// SignOut drops the stored session and publishes SIGNED_OUT.
func (p *ClientProvider) SignOut(ctx context.Context) error {
	if err := p.broker.sessions.Delete(ctx, p.clientID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	p.publish(ctx, domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: p.broker.now()})
	return nil
}

// GetSession returns the stored session, or nil when signed out. Sessions
// with an invalid token or past expiry are removed. A session inside the
// refresh window gets a fresh token and expiry, announced as TOKEN_REFRESHED.
func (p *ClientProvider) GetSession(ctx context.Context) (*domainauth.Session, error) {
	sess, err := p.broker.sessions.Get(ctx, p.clientID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := p.broker.now()
	if sess.Expired(now) {
		return nil, p.discard(ctx, "expired")
	}
	if _, tokErr := p.broker.tokens.Validate(sess.AccessToken); tokErr != nil {
		p.logger.WarnContext(ctx, "stored session token rejected", "error", tokErr)
		return nil, p.discard(ctx, "invalid_token")
	}

	if sess.ExpiresAt.Sub(now) <= p.broker.refreshWindow {
		refreshed, refreshErr := p.refresh(ctx, sess, now)
		if refreshErr != nil {
			// the current token is still valid; retry on the next read
			p.logger.WarnContext(ctx, "token refresh failed", "error", refreshErr)
		} else {
			sess = refreshed
		}
	}
	return &sess, nil
}

// GetUser returns the signed-in user or nil.
func (p *ClientProvider) GetUser(ctx context.Context) (*domainauth.User, error) {
	sess, err := p.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	u := sess.User
	return &u, nil
}

// Subscribe opens this client's event stream.
func (p *ClientProvider) Subscribe(ctx context.Context) (ports.Subscription, error) {
	return p.broker.events.Subscribe(ctx, p.clientID)
}

// UpdatePassword changes the signed-in user's password.
func (p *ClientProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	sess, err := p.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperrors.Validation("No signed-in user.")
	}
	return p.broker.auth.UpdatePassword(ctx, sess.User.ID, newPassword)
}

func (p *ClientProvider) refresh(ctx context.Context, sess domainauth.Session, now time.Time) (domainauth.Session, error) {
	next := sess
	next.IssuedAt = now
	next.ExpiresAt = now.Add(p.broker.ttl)
	token, err := p.broker.tokens.Issue(p.clientID, next)
	if err != nil {
		return sess, err
	}
	next.AccessToken = token
	if err = p.broker.sessions.Save(ctx, p.clientID, next); err != nil {
		return sess, fmt.Errorf("save refreshed session: %w", err)
	}
	p.publish(ctx, domainauth.AuthEvent{Type: domainauth.EventTokenRefreshed, Session: &next, OccurredAt: now})
	return next, nil
}

func (p *ClientProvider) discard(ctx context.Context, reason string) error {
	p.logger.InfoContext(ctx, "discarding stored session", "reason", reason)
	if err := p.broker.sessions.Delete(ctx, p.clientID); err != nil {
		return fmt.Errorf("delete stale session: %w", err)
	}
	return nil
}

// publish is best effort: the caller already holds the outcome, and
// AuthOperations resolves roles without waiting for the event.
func (p *ClientProvider) publish(ctx context.Context, ev domainauth.AuthEvent) {
	if err := p.broker.events.Publish(ctx, p.clientID, ev); err != nil {
		p.logger.WarnContext(ctx, "publish auth event failed", "event", ev.Type, "error", err)
	}
}
