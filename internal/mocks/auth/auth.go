package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/storefront/internal/adapters/authroles"
	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider  = (*FakeProvider)(nil)
	_ ports.Subscription      = (*FakeSubscription)(nil)
	_ ports.Authenticator     = (*MemoryAuthenticator)(nil)
	_ ports.SessionRepository = (*MemorySessionRepository)(nil)
	_ ports.EventBus          = (*MemoryEventBus)(nil)
	_ ports.Navigator         = (*RecordingNavigator)(nil)
	_ ports.Notifier          = (*RecordingNavigator)(nil)
	_ ports.AdminMatcher      = AdminEmail("")
	_ core.RoleStore          = (*CountingRoleStore)(nil)
)

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound = apperrors.NotFound("not found")

// AdminEmail is the production matcher; re-exported so tests import one package.
type AdminEmail = authroles.AdminEmail

// FakeSubscription is a channel-backed event subscription.
type FakeSubscription struct {
	ch   chan domainauth.AuthEvent
	once sync.Once
	mu   sync.Mutex
	done bool
}

// NewFakeSubscription returns a subscription with a small buffer.
func NewFakeSubscription() *FakeSubscription {
	return &FakeSubscription{ch: make(chan domainauth.AuthEvent, 16)}
}

func (s *FakeSubscription) Events() <-chan domainauth.AuthEvent { return s.ch }

func (s *FakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Emit delivers ev unless the subscription has ended. It reports whether ev was sent.
func (s *FakeSubscription) Emit(ev domainauth.AuthEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.ch <- ev
	return true
}

type fakeAccount struct {
	user     domainauth.User
	password string
}

// FakeProvider is an in-memory identity provider for a single browser client.
// Sign-in and sign-out emit events to subscribers when EmitEvents is set.
type FakeProvider struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	session  *domainauth.Session
	subs     []*FakeSubscription

	EmitEvents bool

	SignInErr     error
	SignUpErr     error
	SignOutErr    error
	GetSessionErr error
	SubscribeErr  error

	SignOutCalls int
}

// NewFakeProvider returns an empty provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{accounts: make(map[string]*fakeAccount)}
}

// AddUser registers an account and returns its user.
func (p *FakeProvider) AddUser(email, password string) domainauth.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := domainauth.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now()}
	p.accounts[domainauth.NormalizeEmail(email)] = &fakeAccount{user: u, password: password}
	return u
}

// SetSession installs a session directly, as if restored from a cookie.
func (p *FakeProvider) SetSession(u domainauth.User) *domainauth.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = newSession(u)
	cp := *p.session
	return &cp
}

// Emit pushes ev to every live subscription.
func (p *FakeProvider) Emit(ev domainauth.AuthEvent) {
	p.mu.Lock()
	subs := append([]*FakeSubscription(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		s.Emit(ev)
	}
}

func (p *FakeProvider) SignInWithPassword(_ context.Context, in ports.Credentials) (domainauth.User, error) {
	p.mu.Lock()
	if p.SignInErr != nil {
		p.mu.Unlock()
		return domainauth.User{}, p.SignInErr
	}
	acct, ok := p.accounts[domainauth.NormalizeEmail(in.Email)]
	if !ok || acct.password != in.Password {
		p.mu.Unlock()
		return domainauth.User{}, apperrors.InvalidCredentials("Invalid login credentials")
	}
	p.session = newSession(acct.user)
	sess := *p.session
	emit := p.EmitEvents
	p.mu.Unlock()

	if emit {
		p.Emit(domainauth.AuthEvent{Type: domainauth.EventSignedIn, Session: &sess, OccurredAt: time.Now()})
	}
	return acct.user, nil
}

func (p *FakeProvider) SignUp(_ context.Context, in ports.SignUpInput) (domainauth.User, error) {
	if p.SignUpErr != nil {
		return domainauth.User{}, p.SignUpErr
	}
	key := domainauth.NormalizeEmail(in.Email)
	p.mu.Lock()
	_, exists := p.accounts[key]
	p.mu.Unlock()
	if exists {
		return domainauth.User{}, apperrors.Conflict("User already registered")
	}
	u := p.AddUser(in.Email, in.Password)
	u.Metadata = in.Metadata
	return u, nil
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.SignOutCalls++
	if p.SignOutErr != nil {
		p.mu.Unlock()
		return p.SignOutErr
	}
	p.session = nil
	emit := p.EmitEvents
	p.mu.Unlock()

	if emit {
		p.Emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: time.Now()})
	}
	return nil
}

func (p *FakeProvider) GetSession(_ context.Context) (*domainauth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetSessionErr != nil {
		return nil, p.GetSessionErr
	}
	if p.session == nil {
		return nil, nil
	}
	cp := *p.session
	return &cp, nil
}

func (p *FakeProvider) GetUser(ctx context.Context) (*domainauth.User, error) {
	sess, err := p.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	u := sess.User
	return &u, nil
}

func (p *FakeProvider) Subscribe(_ context.Context) (ports.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubscribeErr != nil {
		return nil, p.SubscribeErr
	}
	s := NewFakeSubscription()
	p.subs = append(p.subs, s)
	return s, nil
}

func (p *FakeProvider) UpdatePassword(_ context.Context, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return apperrors.Validation("No signed-in user.")
	}
	acct, ok := p.accounts[domainauth.NormalizeEmail(p.session.User.Email)]
	if !ok {
		return ErrNotFound
	}
	acct.password = newPassword
	return nil
}

func newSession(u domainauth.User) *domainauth.Session {
	now := time.Now()
	return &domainauth.Session{
		ID:          uuid.NewString(),
		AccessToken: "token-" + u.ID,
		User:        u,
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

// MemoryAuthenticator is an in-memory user directory.
type MemoryAuthenticator struct {
	mu    sync.Mutex
	users map[string]*fakeAccount
}

// NewMemoryAuthenticator returns an empty directory.
func NewMemoryAuthenticator() *MemoryAuthenticator {
	return &MemoryAuthenticator{users: make(map[string]*fakeAccount)}
}

func (a *MemoryAuthenticator) Authenticate(_ context.Context, in ports.Credentials) (domainauth.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.users[domainauth.NormalizeEmail(in.Email)]
	if !ok || acct.password != in.Password {
		return domainauth.User{}, apperrors.InvalidCredentials("Invalid login credentials")
	}
	return acct.user, nil
}

func (a *MemoryAuthenticator) Register(_ context.Context, in ports.SignUpInput) (domainauth.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := domainauth.NormalizeEmail(in.Email)
	if _, ok := a.users[key]; ok {
		return domainauth.User{}, apperrors.Conflict("User already registered")
	}
	u := domainauth.User{ID: uuid.NewString(), Email: strings.TrimSpace(in.Email), CreatedAt: time.Now(), Metadata: in.Metadata}
	a.users[key] = &fakeAccount{user: u, password: in.Password}
	return u, nil
}

func (a *MemoryAuthenticator) UpdatePassword(_ context.Context, userID, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acct := range a.users {
		if acct.user.ID == userID {
			acct.password = newPassword
			return nil
		}
	}
	return ErrNotFound
}

// MemorySessionRepository is an in-memory session repository for unit tests.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionRepository creates a new in-memory session repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionRepository) Save(_ context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[clientID] = sess
	return nil
}

func (m *MemorySessionRepository) Get(_ context.Context, clientID string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[clientID]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionRepository) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, clientID)
	return nil
}

// MemoryEventBus fans events out to in-process subscriptions.
type MemoryEventBus struct {
	mu   sync.Mutex
	subs map[string][]*FakeSubscription
}

// NewMemoryEventBus returns an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: make(map[string][]*FakeSubscription)}
}

func (b *MemoryEventBus) Publish(_ context.Context, clientID string, ev domainauth.AuthEvent) error {
	b.mu.Lock()
	subs := append([]*FakeSubscription(nil), b.subs[clientID]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.Emit(ev)
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(_ context.Context, clientID string) (ports.Subscription, error) {
	s := NewFakeSubscription()
	b.mu.Lock()
	b.subs[clientID] = append(b.subs[clientID], s)
	b.mu.Unlock()
	return s, nil
}

// RecordingNavigator records navigation and notices.
type RecordingNavigator struct {
	mu      sync.Mutex
	current string
	Navs    []string
	Reloads []string
	Notices []ports.Notice
}

// NewRecordingNavigator starts at path.
func NewRecordingNavigator(path string) *RecordingNavigator {
	return &RecordingNavigator{current: path}
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Navs = append(n.Navs, path)
	n.current = path
}

func (n *RecordingNavigator) Reload(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Reloads = append(n.Reloads, path)
	n.current = path
}

func (n *RecordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// SetCurrentPath moves the client without recording a navigation.
func (n *RecordingNavigator) SetCurrentPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
}

func (n *RecordingNavigator) Notify(notice ports.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, notice)
}

// Navigations returns a copy of recorded navigations.
func (n *RecordingNavigator) Navigations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Navs...)
}

// ReloadTargets returns a copy of recorded reloads.
func (n *RecordingNavigator) ReloadTargets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Reloads...)
}

// RecordedNotices returns a copy of recorded notices.
func (n *RecordingNavigator) RecordedNotices() []ports.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.Notice(nil), n.Notices...)
}
