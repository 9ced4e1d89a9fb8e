package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	obserrors "github.com/target/storefront/internal/observability/errors"
	"github.com/target/storefront/internal/observability/notify"
	"github.com/target/storefront/internal/ports"
)

// Default role resolution budgets.
const (
	DefaultRoleTimeout      = 5 * time.Second
	DefaultRoleRetryDelay   = 500 * time.Millisecond
	DefaultRoleQueryTimeout = 30 * time.Second
)

// ResolutionSource names where a committed role result came from.
type ResolutionSource string

const (
	SourceAdminEmail   ResolutionSource = "admin_email"
	SourceStore        ResolutionSource = "store"
	SourceAssigned     ResolutionSource = "assigned"
	SourceFailOpen     ResolutionSource = "fail_open"
	SourceUnprivileged ResolutionSource = "unprivileged"
	SourceTimeout      ResolutionSource = "timeout_fallback"
	SourceCanceled     ResolutionSource = "canceled"
)

// Resolution is the detailed outcome of a role check.
type Resolution struct {
	Roles     domainauth.UserRoles
	Source    ResolutionSource
	TimedOut  bool
	CheckedAt time.Time

	late *lateResult
}

// Fallback reports whether the roles are a stand-in committed without a
// completed check, after a timeout or cancellation.
func (r Resolution) Fallback() bool {
	return r.TimedOut || r.Source == SourceCanceled
}

// WaitLate blocks until the query abandoned by a timeout completes and returns
// its roles. ok is false when the resolution did not time out, the query failed,
// or ctx ends first.
func (r Resolution) WaitLate(ctx context.Context) (domainauth.UserRoles, bool) {
	if r.late == nil {
		return domainauth.UserRoles{}, false
	}
	select {
	case <-r.late.done:
		return r.late.roles, r.late.ok
	case <-ctx.Done():
		return domainauth.UserRoles{}, false
	}
}

type lateResult struct {
	done  chan struct{}
	roles domainauth.UserRoles
	ok    bool
}

// RoleResolverConfig holds the administrator identity and timing budgets.
type RoleResolverConfig struct {
	Admin        ports.AdminMatcher
	Timeout      time.Duration // soft budget before the fallback is committed
	RetryDelay   time.Duration // pause before the single query retry
	QueryTimeout time.Duration // hard cap on a background query
}

// RoleResolverOptions groups dependencies for RoleResolver.
type RoleResolverOptions struct {
	Store     core.RoleStore // Required
	Config    RoleResolverConfig
	Telemetry Telemetry
}

type roleCheckState struct {
	inProgress    bool
	lastCheckedAt time.Time
	lastRoles     domainauth.UserRoles
}

// RoleResolver determines {isAdmin, isClient} for a user. It is shared by every
// browser client so concurrent checks for one user collapse into a single query.
type RoleResolver struct {
	store  core.RoleStore
	cfg    RoleResolverConfig
	tel    Telemetry
	logger *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	checks map[string]*roleCheckState
}

// NewRoleResolver constructs a RoleResolver.
func NewRoleResolver(opts RoleResolverOptions) *RoleResolver {
	if opts.Store == nil {
		panic("RoleResolver requires a RoleStore")
	}
	cfg := opts.Config
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRoleTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	} else if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRoleRetryDelay
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultRoleQueryTimeout
	}
	return &RoleResolver{
		store:  opts.Store,
		cfg:    cfg,
		tel:    opts.Telemetry,
		logger: opts.Telemetry.logger("role_resolver"),
		checks: make(map[string]*roleCheckState),
	}
}

// Resolve returns the roles for userID. It never fails; see ResolveDetailed.
func (r *RoleResolver) Resolve(ctx context.Context, userID, email string) domainauth.UserRoles {
	return r.ResolveDetailed(ctx, userID, email).Roles
}

// IsAdminEmail reports whether email is the configured administrator.
func (r *RoleResolver) IsAdminEmail(email string) bool {
	return r.cfg.Admin != nil && r.cfg.Admin.IsAdminEmail(email)
}

// ResolveDetailed runs a role check for userID and reports how the result was reached.
func (r *RoleResolver) ResolveDetailed(ctx context.Context, userID, email string) Resolution {
	start := time.Now()
	ctx, span := startSpan(ctx, "RoleResolver.Resolve", attribute.String("user.id", userID))
	defer span.End()

	if r.IsAdminEmail(email) {
		res := Resolution{
			Roles:     domainauth.UserRoles{IsAdmin: true, IsClient: true},
			Source:    SourceAdminEmail,
			CheckedAt: time.Now(),
		}
		r.commit(userID, res)
		r.tel.Metrics.ObserveResolution(string(res.Source), time.Since(start))
		span.SetAttributes(attribute.String("resolution.source", string(res.Source)))
		return res
	}

	if userID == "" {
		return Resolution{Source: SourceUnprivileged, CheckedAt: time.Now()}
	}

	prior := r.begin(userID)
	ch := r.group.DoChan(userID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.QueryTimeout)
		defer cancel()
		return r.lookup(qctx, userID), nil
	})

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	var res Resolution
	select {
	case out := <-ch:
		res = out.Val.(Resolution)
		res.CheckedAt = time.Now()
		r.commit(userID, res)
	case <-timer.C:
		res = r.timeoutFallback(ctx, userID, email, prior)
		res.late = r.awaitLate(userID, ch)
	case <-ctx.Done():
		r.group.Forget(userID)
		r.finish(userID)
		res = Resolution{
			Roles:     domainauth.UserRoles{IsAdmin: prior.IsAdmin, IsClient: true}.Normalize(),
			Source:    SourceCanceled,
			CheckedAt: time.Now(),
		}
	}

	r.tel.Metrics.ObserveResolution(string(res.Source), time.Since(start))
	span.SetAttributes(
		attribute.String("resolution.source", string(res.Source)),
		attribute.Bool("resolution.timed_out", res.TimedOut),
		attribute.Bool("roles.admin", res.Roles.IsAdmin),
		attribute.Bool("roles.client", res.Roles.IsClient),
	)
	return res
}

// LastCheck returns when userID's roles were last committed and the roles committed.
func (r *RoleResolver) LastCheck(userID string) (time.Time, domainauth.UserRoles, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.checks[userID]
	if !ok || st.lastCheckedAt.IsZero() {
		return time.Time{}, domainauth.UserRoles{}, false
	}
	return st.lastCheckedAt, st.lastRoles, true
}

// InProgress reports whether a check for userID is outstanding.
func (r *RoleResolver) InProgress(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.checks[userID]
	return ok && st.inProgress
}

// ResetUser drops the remembered check state for userID.
func (r *RoleResolver) ResetUser(userID string) {
	r.mu.Lock()
	delete(r.checks, userID)
	r.mu.Unlock()
}

func (r *RoleResolver) state(userID string) *roleCheckState {
	st, ok := r.checks[userID]
	if !ok {
		st = &roleCheckState{}
		r.checks[userID] = st
	}
	return st
}

// begin marks a check in progress and returns the last known roles.
func (r *RoleResolver) begin(userID string) domainauth.UserRoles {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	st.inProgress = true
	return st.lastRoles
}

func (r *RoleResolver) finish(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(userID).inProgress = false
}

func (r *RoleResolver) commit(userID string, res Resolution) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	st.inProgress = false
	st.lastCheckedAt = res.CheckedAt
	st.lastRoles = res.Roles
}

func (r *RoleResolver) timeoutFallback(ctx context.Context, userID, email string, prior domainauth.UserRoles) Resolution {
	r.group.Forget(userID)
	r.finish(userID)
	r.tel.Metrics.IncTimeout()

	err := apperrors.ResolutionTimeout(fmt.Sprintf("role check exceeded %s", r.cfg.Timeout))
	r.logger.WarnContext(ctx, "role resolution timed out; committing fallback",
		"user_id", userID,
		"timeout", r.cfg.Timeout,
		"prior_admin", prior.IsAdmin,
	)
	r.tel.notify(ctx, notify.AuthIncidentPayload{
		Kind:       notify.IncidentResolutionTimeout,
		UserID:     userID,
		Email:      email,
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
	})

	return Resolution{
		Roles:     domainauth.UserRoles{IsAdmin: prior.IsAdmin, IsClient: true}.Normalize(),
		Source:    SourceTimeout,
		TimedOut:  true,
		CheckedAt: time.Now(),
	}
}

// awaitLate records the abandoned query's outcome once it arrives. The query
// itself is bounded by QueryTimeout so the goroutine always finishes.
func (r *RoleResolver) awaitLate(userID string, ch <-chan singleflight.Result) *lateResult {
	late := &lateResult{done: make(chan struct{})}
	go func() {
		defer close(late.done)
		out := <-ch
		res, _ := out.Val.(Resolution)
		if res.Source == SourceFailOpen || res.Source == SourceUnprivileged {
			r.tel.Metrics.IncLateResult(errors.New(string(res.Source)))
			return
		}
		r.tel.Metrics.IncLateResult(nil)
		res.CheckedAt = time.Now()
		r.mu.Lock()
		st := r.state(userID)
		if !st.inProgress {
			st.lastCheckedAt = res.CheckedAt
			st.lastRoles = res.Roles
		}
		r.mu.Unlock()
		late.roles = res.Roles
		late.ok = true
	}()
	return late
}

// lookup queries the store and runs the default-role fallback chain. Errors are
// absorbed into safe defaults.
func (r *RoleResolver) lookup(ctx context.Context, userID string) Resolution {
	rows, queryErr := r.queryWithRetry(ctx, userID)
	if queryErr == nil && len(rows) > 0 {
		return Resolution{Roles: domainauth.RolesFromRows(rows), Source: SourceStore}
	}

	if queryErr != nil {
		r.logger.WarnContext(ctx, "role query failed after retry; treating as no roles",
			"user_id", userID,
			"error", queryErr,
		)
	}

	if roles, ok := r.assignDefault(ctx, userID); ok {
		return Resolution{Roles: roles, Source: SourceAssigned}
	}

	r.tel.notify(ctx, notify.AuthIncidentPayload{
		Kind:       notify.IncidentRoleAssignmentFailed,
		UserID:     userID,
		Error:      errorString(queryErr),
		ErrorClass: obserrors.Classify(queryErr),
	})

	if queryErr != nil {
		// The store never answered; fail open for client access only.
		return Resolution{Roles: domainauth.UserRoles{IsClient: true}, Source: SourceFailOpen}
	}
	return Resolution{Source: SourceUnprivileged}
}

func (r *RoleResolver) queryWithRetry(ctx context.Context, userID string) ([]domainauth.Role, error) {
	rows, err := r.query(ctx, userID)
	if err == nil {
		return rows, nil
	}
	r.logger.DebugContext(ctx, "role query failed; retrying", "user_id", userID, "error", err)

	t := time.NewTimer(r.cfg.RetryDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return nil, errors.Join(err, ctx.Err())
	case <-t.C:
	}
	return r.query(ctx, userID)
}

func (r *RoleResolver) query(ctx context.Context, userID string) ([]domainauth.Role, error) {
	rows, err := r.store.RolesForUser(ctx, userID)
	r.tel.Metrics.RoleStoreOp("query", err)
	if err != nil {
		return nil, apperrors.RoleQuery(err, "query roles")
	}
	return rows, nil
}

// assignDefault tries, in order, the assignment procedure, a direct insert and a
// verifying re-query, stopping at the first that succeeds.
func (r *RoleResolver) assignDefault(ctx context.Context, userID string) (domainauth.UserRoles, bool) {
	client := domainauth.UserRoles{IsClient: true}

	err := r.store.AssignClientRole(ctx, userID)
	r.tel.Metrics.RoleStoreOp("assign_client_role", err)
	if err == nil {
		r.logger.InfoContext(ctx, "assigned default client role", "user_id", userID)
		return client, true
	}
	r.logger.WarnContext(ctx, "assign_client_role failed", "user_id", userID, "error", err)

	err = r.store.InsertRole(ctx, userID, domainauth.RoleClient)
	r.tel.Metrics.RoleStoreOp("insert", err)
	if err == nil || apperrors.IsConflict(err) {
		return client, true
	}
	r.logger.WarnContext(ctx, "direct client role insert failed", "user_id", userID, "error", err)

	rows, err := r.query(ctx, userID)
	if err == nil && len(rows) > 0 {
		return domainauth.RolesFromRows(rows), true
	}
	if err != nil {
		r.logger.WarnContext(ctx, "verifying role re-query failed", "user_id", userID, "error", err)
	}
	return domainauth.UserRoles{}, false
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
