package service

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	obserrors "github.com/target/storefront/internal/observability/errors"
	"github.com/target/storefront/internal/observability/notify"
	"github.com/target/storefront/internal/ports"
)

// MinPasswordLength is enforced on sign-up and password change.
const MinPasswordLength = 8

const verifyEmailNotice = "Check your email to confirm your account, then sign in."

// PasswordFlags tracks the forced password change that follows admin provisioning.
type PasswordFlags interface {
	PasswordChangeRequired(ctx context.Context, userID string) (bool, error)
	ClearPasswordChange(ctx context.Context, userID string) error
}

// AuthOperationsOptions groups dependencies for AuthOperations.
type AuthOperationsOptions struct {
	Deps      SessionDeps
	Flags     PasswordFlags // Optional
	Telemetry Telemetry
}

// AuthOperations are the imperative sign-in, sign-up and sign-out entry points
// for one browser client.
type AuthOperations struct {
	deps   SessionDeps
	flags  PasswordFlags
	tel    Telemetry
	logger *slog.Logger
}

// NewAuthOperations constructs AuthOperations.
func NewAuthOperations(opts AuthOperationsOptions) *AuthOperations {
	d := opts.Deps
	if d.Provider == nil || d.Store == nil || d.Roles == nil || d.Navigator == nil {
		panic("AuthOperations requires Provider, Store, Roles and Navigator")
	}
	if d.Latch == nil {
		d.Latch = NewRedirectLatch(opts.Telemetry.Logger)
	}
	return &AuthOperations{
		deps:   d,
		flags:  opts.Flags,
		tel:    opts.Telemetry,
		logger: opts.Telemetry.logger("auth_operations"),
	}
}

// SignIn authenticates with the provider, resolves roles and navigates to the
// matching dashboard unless another redirect decision holds the latch.
// Provider errors are returned unchanged so forms can show them.
func (o *AuthOperations) SignIn(ctx context.Context, in ports.Credentials) (err error) {
	ctx, span := startSpan(ctx, "AuthOperations.SignIn")
	defer func() {
		o.tel.Metrics.AuthOperation("sign_in", err)
		endSpan(span, err)
	}()

	// Claimed before the provider call so the listener's handling of the
	// resulting SIGNED_IN finds it held and leaves the redirect to us.
	claimed := o.deps.Latch.TryClaim()
	if claimed {
		defer o.deps.Latch.Release()
	}

	if _, err = o.deps.Provider.SignInWithPassword(ctx, in); err != nil {
		o.logger.InfoContext(ctx, "sign in rejected", "error_class", obserrors.Classify(err))
		return err
	}

	user, err := o.deps.Provider.GetUser(ctx)
	if err != nil {
		return apperrors.Network(err, "Could not load your account. Please try again.")
	}
	if user == nil {
		return apperrors.Internal("signed in without a user")
	}
	// Loading covers the gap between attaching the user and committing roles,
	// so concurrent guard checks wait instead of seeing a user with no roles.
	o.deps.Store.SetLoading(true)
	o.deps.Store.SetUser(user)
	if sess, sessErr := o.deps.Provider.GetSession(ctx); sessErr == nil && sess != nil {
		o.deps.Store.SetSession(sess)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	roles := o.applyResolution(ctx, *user)
	if !claimed {
		o.logger.DebugContext(ctx, "redirect already in progress; skipping sign-in navigation")
		return nil
	}
	o.deps.Navigator.Navigate(domainauth.DashboardFor(roles))
	return nil
}

// SignUp registers a new user and sends them to the login page. Roles are not
// resolved because no session exists yet.
func (o *AuthOperations) SignUp(ctx context.Context, in ports.SignUpInput) (err error) {
	ctx, span := startSpan(ctx, "AuthOperations.SignUp")
	defer func() {
		o.tel.Metrics.AuthOperation("sign_up", err)
		endSpan(span, err)
	}()

	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return apperrors.ValidationField("password", "Password must be at least 8 characters.")
	}
	if _, err = o.deps.Provider.SignUp(ctx, in); err != nil {
		return err
	}
	o.notify(ports.Notice{Level: ports.NoticeInfo, Message: verifyEmailNotice})
	o.deps.Navigator.Navigate(domainauth.RouteLogin)
	return nil
}

// SignOut clears local state first, then signs out with the provider and
// requests a full page navigation home. A provider failure is returned.
func (o *AuthOperations) SignOut(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, "AuthOperations.SignOut")
	defer func() {
		o.tel.Metrics.AuthOperation("sign_out", err)
		endSpan(span, err)
	}()

	prev := o.deps.Store.Snapshot()
	o.deps.Store.Clear()
	if prev.User != nil {
		o.deps.Roles.ResetUser(prev.User.ID)
	}

	if err = o.deps.Provider.SignOut(ctx); err != nil {
		payload := notify.AuthIncidentPayload{
			Kind:       notify.IncidentSignOutFailed,
			Error:      err.Error(),
			ErrorClass: obserrors.Classify(err),
		}
		if prev.User != nil {
			payload.UserID, payload.Email = prev.User.ID, prev.User.Email
		}
		o.tel.notify(ctx, payload)
		o.logger.ErrorContext(ctx, "provider sign out failed", "error", err)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.Network(err, "Sign out failed. Please try again.")
	}

	o.deps.Navigator.Reload(domainauth.RouteHome)
	return nil
}

// RefreshRoles re-runs role resolution for the signed-in user.
func (o *AuthOperations) RefreshRoles(ctx context.Context) (domainauth.UserRoles, error) {
	snap := o.deps.Store.Snapshot()
	if snap.User == nil {
		return domainauth.UserRoles{}, apperrors.Validation("No signed-in user.")
	}
	roles := o.applyResolution(ctx, *snap.User)
	return roles, nil
}

// ChangePassword updates the signed-in user's password and clears the
// password-change flag.
func (o *AuthOperations) ChangePassword(ctx context.Context, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "AuthOperations.ChangePassword")
	defer func() {
		o.tel.Metrics.AuthOperation("change_password", err)
		endSpan(span, err)
	}()

	snap := o.deps.Store.Snapshot()
	if snap.User == nil {
		return apperrors.Validation("No signed-in user.")
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return apperrors.ValidationField("password", "Password must be at least 8 characters.")
	}
	if err = o.deps.Provider.UpdatePassword(ctx, newPassword); err != nil {
		return err
	}
	if o.flags != nil {
		if flagErr := o.flags.ClearPasswordChange(ctx, snap.User.ID); flagErr != nil {
			o.logger.WarnContext(ctx, "clear password change flag", "user_id", snap.User.ID, "error", flagErr)
		}
	}
	o.notify(ports.Notice{Level: ports.NoticeInfo, Message: "Password updated."})
	return nil
}

// PasswordChangeRequired reports whether the signed-in user must change their password.
func (o *AuthOperations) PasswordChangeRequired(ctx context.Context) bool {
	snap := o.deps.Store.Snapshot()
	if o.flags == nil || snap.User == nil {
		return false
	}
	required, err := o.flags.PasswordChangeRequired(ctx, snap.User.ID)
	if err != nil {
		o.logger.WarnContext(ctx, "read password change flag", "user_id", snap.User.ID, "error", err)
		return false
	}
	return required
}

func (o *AuthOperations) applyResolution(ctx context.Context, user domainauth.User) domainauth.UserRoles {
	res := o.deps.Roles.ResolveDetailed(ctx, user.ID, user.Email)
	commitResolution(o.deps.Store, user.ID, res)
	o.deps.Store.SetLoading(false)
	if res.TimedOut {
		o.notify(ports.Notice{Level: ports.NoticeWarning, Message: slowResolutionNotice})
	}
	return o.deps.Store.Snapshot().Roles()
}

func (o *AuthOperations) notify(n ports.Notice) {
	if o.deps.Notifier != nil {
		o.deps.Notifier.Notify(n)
	}
}
