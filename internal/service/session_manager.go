package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
)

// Default registry timings.
const (
	DefaultClientIdleTimeout = 30 * time.Minute
	DefaultSweepInterval     = time.Minute
)

// SessionManager is the explicit session object for one browser client. It owns
// the client's store, listener, operations and navigation state.
type SessionManager struct {
	ClientID string
	Store    *SessionStore
	Browser  *Browser
	Listener *SessionListener
	Ops      *AuthOperations
	Guard    *RouteGuard

	lastSeen atomic.Int64
}

// Touch marks the manager as used now.
func (m *SessionManager) Touch() {
	m.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the manager was last used.
func (m *SessionManager) LastSeen() time.Time {
	return time.Unix(0, m.lastSeen.Load())
}

// RegistryDeps are the shared collaborators every manager is built from.
type RegistryDeps struct {
	Broker ports.IdentityBroker
	Roles  RoleSource
	Flags  PasswordFlags // Optional
}

// RegistryConfig holds manager lifetime settings.
type RegistryConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// SessionRegistryOptions groups dependencies for SessionRegistry.
type SessionRegistryOptions struct {
	Deps      RegistryDeps
	Config    RegistryConfig
	Telemetry Telemetry
}

// SessionRegistry creates and tears down SessionManagers keyed by client id.
type SessionRegistry struct {
	deps   RegistryDeps
	cfg    RegistryConfig
	tel    Telemetry
	logger *slog.Logger

	root   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	managers map[string]*SessionManager
	closed   bool
}

// NewSessionRegistry constructs a registry. Managers live until dropped,
// swept as idle, or the registry is closed.
func NewSessionRegistry(opts SessionRegistryOptions) *SessionRegistry {
	if opts.Deps.Broker == nil || opts.Deps.Roles == nil {
		panic("SessionRegistry requires Broker and Roles")
	}
	cfg := opts.Config
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultClientIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	root, cancel := context.WithCancel(context.Background())
	return &SessionRegistry{
		deps:     opts.Deps,
		cfg:      cfg,
		tel:      opts.Telemetry,
		logger:   opts.Telemetry.logger("session_registry"),
		root:     root,
		cancel:   cancel,
		managers: make(map[string]*SessionManager),
	}
}

// ErrRegistryClosed is returned by Acquire after Close.
var ErrRegistryClosed = errors.New("session registry closed")

// Acquire returns the manager for the client, creating and starting one on
// first use. path is the route of the request that triggered creation. The
// listener subscribes outside the registry lock; when two requests race to
// create the same client, the first to register wins and the other listener
// is stopped.
func (r *SessionRegistry) Acquire(client ports.ClientInfo, path string) (*SessionManager, error) {
	if m, err := r.existing(client.ID); m != nil || err != nil {
		return m, err
	}

	m := r.build(client, path)
	if err := m.Listener.Start(r.root); err != nil {
		return nil, fmt.Errorf("start session listener: %w", err)
	}
	m.Touch()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		m.Listener.Stop()
		return nil, ErrRegistryClosed
	}
	if won, ok := r.managers[client.ID]; ok {
		r.mu.Unlock()
		m.Listener.Stop()
		won.Touch()
		return won, nil
	}
	r.managers[client.ID] = m
	r.mu.Unlock()

	r.tel.Metrics.ManagerOpened()
	r.logger.Debug("session manager created", "client_id", client.ID)
	return m, nil
}

func (r *SessionRegistry) existing(clientID string) (*SessionManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if m, ok := r.managers[clientID]; ok {
		m.Touch()
		return m, nil
	}
	return nil, nil
}

// Lookup returns the manager for clientID without creating one.
func (r *SessionRegistry) Lookup(clientID string) (*SessionManager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[clientID]
	return m, ok
}

// Drop stops and forgets the manager for clientID.
func (r *SessionRegistry) Drop(clientID string) {
	r.mu.Lock()
	m, ok := r.managers[clientID]
	delete(r.managers, clientID)
	r.mu.Unlock()
	if ok {
		m.Listener.Stop()
		r.tel.Metrics.ManagerClosed()
	}
}

// Len returns the number of live managers.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Sweep drops managers idle for longer than the idle timeout and returns how many.
func (r *SessionRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	var idle []string
	for id, m := range r.managers {
		if now.Sub(m.LastSeen()) > r.cfg.IdleTimeout {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Drop(id)
	}
	if len(idle) > 0 {
		r.logger.Debug("swept idle session managers", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps idle managers until ctx ends, then closes the registry.
func (r *SessionRegistry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close stops every manager. It is safe to call more than once.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	managers := r.managers
	r.managers = make(map[string]*SessionManager)
	r.mu.Unlock()

	r.cancel()
	for _, m := range managers {
		m.Listener.Stop()
		r.tel.Metrics.ManagerClosed()
	}
}

func (r *SessionRegistry) build(client ports.ClientInfo, path string) *SessionManager {
	store := NewSessionStore()
	browser := NewBrowser(path)
	base := r.tel.Logger
	if base == nil {
		base = slog.Default()
	}
	tel := r.tel
	tel.Logger = base.With("client_id", client.ID)

	deps := SessionDeps{
		Provider:  r.deps.Broker.ForClient(client),
		Store:     store,
		Roles:     r.deps.Roles,
		Navigator: browser,
		Notifier:  browser,
		Latch:     NewRedirectLatch(tel.Logger),
	}
	return &SessionManager{
		ClientID: client.ID,
		Store:    store,
		Browser:  browser,
		Listener: NewSessionListener(SessionListenerOptions{Deps: deps, Telemetry: tel}),
		Ops:      NewAuthOperations(AuthOperationsOptions{Deps: deps, Flags: r.deps.Flags, Telemetry: tel}),
		Guard:    NewRouteGuard(store, r.tel.Metrics),
	}
}

// StatusView is the JSON-friendly snapshot served to the browser.
type StatusView struct {
	State         string               `json:"listener_state"`
	Session       SessionState         `json:"session"`
	Roles         domainauth.UserRoles `json:"roles"`
	PendingNav    *Navigation          `json:"pending_navigation,omitempty"`
	Notices       []ports.Notice       `json:"notices,omitempty"`
	MustChangePwd bool                 `json:"must_change_password"`
}

// Status builds a StatusView and drains queued notices.
func (m *SessionManager) Status(ctx context.Context) StatusView {
	snap := m.Store.Snapshot()
	view := StatusView{
		State:         m.Listener.State().String(),
		Session:       snap,
		Roles:         snap.Roles(),
		Notices:       m.Browser.DrainNotices(),
		MustChangePwd: m.Ops.PasswordChangeRequired(ctx),
	}
	if nav, ok := m.Browser.Pending(); ok {
		view.PendingNav = &nav
	}
	// Access tokens stay server-side.
	if view.Session.Session != nil {
		view.Session.Session.AccessToken = ""
	}
	return view
}
