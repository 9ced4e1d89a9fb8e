// Package devseed loads development accounts into the local user directory so
// AUTH_MODE=local can be exercised with the same logins as AUTH_MODE=mock.
package devseed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/storefront/internal/adapters/devauth"
	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

// Registrar creates directory accounts.
type Registrar interface {
	Register(ctx context.Context, in ports.SignUpInput) (domainauth.User, error)
}

// UserLookup finds existing accounts by email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (domainauth.UserRecord, error)
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Registrar Registrar
	Users     UserLookup
	Roles     core.RoleStore
	Admin     ports.AdminMatcher // optional; matching accounts also get the admin role
}

// Result summarizes a run.
type Result struct {
	Created  int
	Existing int
}

// Run registers every account that does not exist yet and makes sure each one
// has the client role. Failures are logged and counted; the run continues.
func Run(ctx context.Context, svcs Services, accounts []devauth.User, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default().With("component", "devseed")
	}
	var res Result
	failures := 0

	for _, acct := range accounts {
		user, created, err := ensureAccount(ctx, svcs, acct)
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed account", "email", acct.Email, "error", err)
			failures++
			continue
		}
		if created {
			res.Created++
			logger.InfoContext(ctx, "created account", "email", user.Email, "user_id", user.ID)
		} else {
			res.Existing++
			logger.InfoContext(ctx, "account already exists", "email", user.Email)
		}

		if err := seedRoles(ctx, svcs, user); err != nil {
			logger.ErrorContext(ctx, "failed to seed roles", "email", user.Email, "error", err)
			failures++
		}
	}

	if failures > 0 {
		return res, fmt.Errorf("%d seed errors; check logs", failures)
	}
	return res, nil
}

func ensureAccount(ctx context.Context, svcs Services, acct devauth.User) (domainauth.User, bool, error) {
	var meta map[string]string
	if acct.Name != "" {
		meta = map[string]string{"name": acct.Name}
	}
	user, err := svcs.Registrar.Register(ctx, ports.SignUpInput{
		Email:    acct.Email,
		Password: acct.Password,
		Metadata: meta,
	})
	if err == nil {
		return user, true, nil
	}
	if !apperrors.IsConflict(err) {
		return domainauth.User{}, false, err
	}
	rec, err := svcs.Users.GetByEmail(ctx, acct.Email)
	if err != nil {
		return domainauth.User{}, false, err
	}
	return rec.User, false, nil
}

func seedRoles(ctx context.Context, svcs Services, user domainauth.User) error {
	if err := svcs.Roles.AssignClientRole(ctx, user.ID); err != nil {
		return err
	}
	if svcs.Admin == nil || !svcs.Admin.IsAdminEmail(user.Email) {
		return nil
	}
	if err := svcs.Roles.InsertRole(ctx, user.ID, domainauth.RoleAdmin); err != nil && !apperrors.IsConflict(err) {
		return err
	}
	return nil
}
