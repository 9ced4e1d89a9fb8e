package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
)

// ListenerState is the SessionListener's position in its state machine.
type ListenerState int32

const (
	ListenerIdle ListenerState = iota
	ListenerBootstrapping
	ListenerResolving
	ListenerSettled
)

func (s ListenerState) String() string {
	switch s {
	case ListenerIdle:
		return "idle"
	case ListenerBootstrapping:
		return "bootstrapping"
	case ListenerResolving:
		return "resolving"
	case ListenerSettled:
		return "settled"
	default:
		return "unknown"
	}
}

const slowResolutionNotice = "Checking your account permissions is taking longer than usual. Some admin features may appear shortly."

// RoleSource resolves roles for a signed-in user.
type RoleSource interface {
	ResolveDetailed(ctx context.Context, userID, email string) Resolution
	IsAdminEmail(email string) bool
	ResetUser(userID string)
}

// SessionDeps are the per-client collaborators shared by the listener and auth operations.
type SessionDeps struct {
	Provider  ports.IdentityProvider
	Store     *SessionStore
	Roles     RoleSource
	Navigator ports.Navigator
	Notifier  ports.Notifier
	Latch     *RedirectLatch
}

// SessionListenerOptions groups dependencies for SessionListener.
type SessionListenerOptions struct {
	Deps      SessionDeps
	Telemetry Telemetry
}

// SessionListener keeps a SessionStore in step with the identity provider:
// it bootstraps from the current session, then consumes provider events.
type SessionListener struct {
	deps   SessionDeps
	tel    Telemetry
	logger *slog.Logger

	state atomic.Int32
	// generation increments on each session change so results for a
	// superseded session are dropped.
	generation atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	sub    ports.Subscription
	done   chan struct{}
}

// NewSessionListener constructs a SessionListener.
func NewSessionListener(opts SessionListenerOptions) *SessionListener {
	d := opts.Deps
	if d.Provider == nil || d.Store == nil || d.Roles == nil || d.Navigator == nil {
		panic("SessionListener requires Provider, Store, Roles and Navigator")
	}
	if d.Latch == nil {
		d.Latch = NewRedirectLatch(opts.Telemetry.Logger)
	}
	return &SessionListener{
		deps:   d,
		tel:    opts.Telemetry,
		logger: opts.Telemetry.logger("session_listener"),
	}
}

// State returns the current state.
func (l *SessionListener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Start subscribes to provider events and bootstraps from the current session
// in the background. ctx bounds the listener's lifetime.
func (l *SessionListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return errors.New("session listener already started")
	}

	// Subscribe before reading the session so no event falls between the two.
	sub, err := l.deps.Provider.Subscribe(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.sub = sub
	l.done = make(chan struct{})
	l.state.Store(int32(ListenerBootstrapping))

	go l.run(runCtx, sub, l.done)
	return nil
}

// Stop unsubscribes and waits for the event loop to exit.
func (l *SessionListener) Stop() {
	l.mu.Lock()
	cancel, sub, done := l.cancel, l.sub, l.done
	l.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	sub.Unsubscribe()
	<-done
	l.state.Store(int32(ListenerIdle))
}

// Done is closed when the event loop exits.
func (l *SessionListener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *SessionListener) run(ctx context.Context, sub ports.Subscription, done chan struct{}) {
	defer close(done)

	l.bootstrap(ctx)

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				l.logger.DebugContext(ctx, "provider event stream closed")
				return
			}
			l.handleEvent(ctx, ev)
		}
	}
}

func (l *SessionListener) bootstrap(ctx context.Context) {
	sess, err := l.deps.Provider.GetSession(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "initial session check failed", "error", err)
	}
	if err != nil || sess == nil {
		l.generation.Add(1)
		l.deps.Store.SetLoading(false)
		l.state.Store(int32(ListenerIdle))
		return
	}
	l.resolveSession(ctx, sess)
}

func (l *SessionListener) handleEvent(ctx context.Context, ev domainauth.AuthEvent) {
	l.logger.DebugContext(ctx, "auth event", "type", ev.Type)

	switch ev.Type {
	case domainauth.EventSignedOut:
		l.signedOut(ctx)
	case domainauth.EventSignedIn, domainauth.EventTokenRefreshed:
		sess := ev.Session
		if sess == nil {
			var err error
			sess, err = l.deps.Provider.GetSession(ctx)
			if err != nil || sess == nil {
				l.logger.WarnContext(ctx, "event without a readable session", "type", ev.Type, "error", err)
				return
			}
		}
		l.resolveSession(ctx, sess)
	default:
		// OTHER events carry nothing the role core needs.
	}
}

func (l *SessionListener) signedOut(ctx context.Context) {
	l.generation.Add(1)
	prev := l.deps.Store.Snapshot()
	l.deps.Store.Clear()
	if prev.User != nil {
		l.deps.Roles.ResetUser(prev.User.ID)
	}
	l.state.Store(int32(ListenerIdle))

	if domainauth.IsPublicRoute(l.deps.Navigator.CurrentPath()) {
		return
	}
	if !l.deps.Latch.TryClaim() {
		l.logger.DebugContext(ctx, "redirect already in progress; skipping sign-out redirect")
		return
	}
	defer l.deps.Latch.Release()
	l.deps.Navigator.Navigate(domainauth.RouteHome)
}

// resolveSession runs the Bootstrapping/Settled -> Resolving -> Settled path for sess.
func (l *SessionListener) resolveSession(ctx context.Context, sess *domainauth.Session) {
	gen := l.generation.Add(1)
	user := sess.User

	ctx, span := startSpan(ctx, "SessionListener.resolve", attribute.String("user.id", user.ID))
	defer span.End()

	claimed := l.deps.Latch.TryClaim()
	if claimed {
		defer l.deps.Latch.Release()
	}

	// Loading goes up before the user is attached so the store never shows a
	// settled user without roles.
	if !l.deps.Roles.IsAdminEmail(user.Email) {
		l.state.Store(int32(ListenerResolving))
	}
	l.deps.Store.SetLoading(true)
	l.deps.Store.SetUser(&user)
	l.deps.Store.SetSession(sess)

	res := l.deps.Roles.ResolveDetailed(ctx, user.ID, user.Email)
	if l.generation.Load() != gen {
		l.logger.DebugContext(ctx, "dropping role result for superseded session", "user_id", user.ID)
		return
	}

	commitResolution(l.deps.Store, user.ID, res)
	l.deps.Store.SetLoading(false)
	l.state.Store(int32(ListenerSettled))

	if res.TimedOut {
		l.notify(ports.Notice{Level: ports.NoticeWarning, Message: slowResolutionNotice})
		go l.applyLate(ctx, gen, user.ID, res)
	}

	if claimed {
		l.redirectAfterResolve(ctx)
	} else {
		l.logger.DebugContext(ctx, "redirect already in progress; skipping post-resolve redirect")
	}
}

// applyLate upgrades the committed fallback with the abandoned query's result.
func (l *SessionListener) applyLate(ctx context.Context, gen uint64, userID string, res Resolution) {
	roles, ok := res.WaitLate(ctx)
	if !ok || l.generation.Load() != gen {
		return
	}
	if l.deps.Store.ApplyLateRoles(userID, roles, time.Now()) {
		l.logger.InfoContext(ctx, "applied late role result", "user_id", userID, "is_admin", roles.IsAdmin)
	}
}

// commitResolution writes res to store. A fallback keeps the admin flag the
// session already holds; a completed check is written as resolved.
func commitResolution(store *SessionStore, userID string, res Resolution) bool {
	if res.Fallback() {
		return store.ApplyLateRoles(userID, res.Roles, res.CheckedAt)
	}
	return store.ApplyRoles(userID, res.Roles, res.CheckedAt)
}

func (l *SessionListener) redirectAfterResolve(ctx context.Context) {
	snap := l.deps.Store.Snapshot()
	target, ok := domainauth.PostResolveRedirect(l.deps.Navigator.CurrentPath(), snap.Roles())
	if !ok {
		return
	}
	l.logger.DebugContext(ctx, "post-resolve redirect", "to", target)
	l.deps.Navigator.Navigate(target)
}

func (l *SessionListener) notify(n ports.Notice) {
	if l.deps.Notifier != nil {
		l.deps.Notifier.Notify(n)
	}
}
