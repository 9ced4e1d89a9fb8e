package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/storefront/config"
	"github.com/target/storefront/internal/adapters/localauth"
	"github.com/target/storefront/internal/bootstrap"
	"github.com/target/storefront/internal/core"
	"github.com/target/storefront/internal/data"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

const (
	provisionLockKey = "storefront:provision-admin:lock"
	provisionLockTTL = time.Minute
)

var errProvisionLocked = errors.New("another provision-admin run holds the lock")

type adminRegistrar interface {
	Register(ctx context.Context, in ports.SignUpInput) (domainauth.User, error)
}

type userLookup interface {
	GetByEmail(ctx context.Context, email string) (domainauth.UserRecord, error)
}

type provisionLock interface {
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

type passwordFlagger interface {
	RequirePasswordChange(ctx context.Context, userID string) error
}

// adminProvisioner creates the administrator account on first run.
type adminProvisioner struct {
	registrar adminRegistrar
	users     userLookup
	roles     core.RoleStore
	flags     passwordFlagger
	lock      provisionLock
}

type provisionResult struct {
	User    domainauth.User
	Created bool
	Granted []domainauth.Role
}

// Provision registers email with password unless it already exists, grants
// admin and client, and flags a new account for a password change.
func (p *adminProvisioner) Provision(ctx context.Context, email, password string) (provisionResult, error) {
	var res provisionResult
	if email == "" {
		return res, errors.New("admin email is required (AUTH_ADMIN_EMAIL)")
	}
	if password == "" {
		return res, errors.New("admin password is required (AUTH_ADMIN_PASSWORD or --password)")
	}

	host, _ := os.Hostname()
	ok, err := p.lock.SetIfNotExists(ctx, provisionLockKey, []byte(host), provisionLockTTL)
	if err != nil {
		return res, fmt.Errorf("acquire provision lock: %w", err)
	}
	if !ok {
		return res, errProvisionLocked
	}
	defer func() {
		_, _ = p.lock.Delete(context.WithoutCancel(ctx), provisionLockKey)
	}()

	user, err := p.registrar.Register(ctx, ports.SignUpInput{
		Email:    email,
		Password: password,
		Metadata: map[string]string{"name": "Administrator"},
	})
	switch {
	case err == nil:
		res.Created = true
	case apperrors.IsConflict(err):
		rec, lookupErr := p.users.GetByEmail(ctx, email)
		if lookupErr != nil {
			return res, fmt.Errorf("load existing admin: %w", lookupErr)
		}
		user = rec.User
	default:
		return res, fmt.Errorf("register admin: %w", err)
	}
	res.User = user

	for _, role := range []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleClient} {
		if err := p.roles.InsertRole(ctx, user.ID, role); err != nil {
			if apperrors.IsConflict(err) {
				continue
			}
			return res, fmt.Errorf("grant %s: %w", role, err)
		}
		res.Granted = append(res.Granted, role)
	}

	if res.Created && p.flags != nil {
		if err := p.flags.RequirePasswordChange(ctx, user.ID); err != nil {
			return res, fmt.Errorf("flag password change: %w", err)
		}
	}
	return res, nil
}

func newProvisionAdminCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "provision-admin",
		Short: "Create the administrator account and grant admin and client roles",
		Long: `provision-admin registers AUTH_ADMIN_EMAIL in the local user directory with
AUTH_ADMIN_PASSWORD, grants the admin and client roles and requires a password
change at first sign-in. Re-running it only fills in missing roles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Auth.Mode != config.AuthModeLocal {
				return fmt.Errorf("provision-admin needs AUTH_MODE=local (current %q)", a.cfg.Auth.Mode)
			}
			if password == "" {
				password = a.cfg.Auth.AdminPassword
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			client, closeRedis, err := a.connectRedis(ctx)
			if err != nil {
				return err
			}
			defer closeRedis()

			users := data.NewUserRepo(db)
			cache := data.NewRedisCacheRepo(client)
			p := &adminProvisioner{
				registrar: localauth.New(localauth.Options{Users: users, Logger: a.logger}),
				users:     users,
				roles:     data.NewRoleRepo(db),
				flags:     bootstrap.NewFlagService(cache),
				lock:      cache,
			}
			res, err := p.Provision(ctx, a.cfg.Auth.AdminEmail, password)
			if err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "admin provisioned",
				"user_id", res.User.ID,
				"created", res.Created,
				"granted", res.Granted,
			)
			return writef(cmd.OutOrStdout(), "admin %s (%s) created=%t granted=%v\n",
				res.User.Email, res.User.ID, res.Created, res.Granted)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initial admin password (defaults to AUTH_ADMIN_PASSWORD)")
	return cmd
}
