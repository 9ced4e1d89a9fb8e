package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/target/storefront/internal/adapters/authroles"
	"github.com/target/storefront/internal/adapters/devauth"
	"github.com/target/storefront/internal/adapters/localauth"
	"github.com/target/storefront/internal/data"
	"github.com/target/storefront/internal/devseed"
)

func newDevSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dev-seed",
		Short: "Load DEV_AUTH_USERS into the local user directory (dev mode only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.IsDev {
				return errors.New("dev-seed only runs with DEV=true")
			}
			accounts, err := devauth.ParseUsers(a.cfg.Auth.DevAuth.Users)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				return devauth.ErrNoUsers
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			users := data.NewUserRepo(db)
			res, err := devseed.Run(ctx, devseed.Services{
				Registrar: localauth.New(localauth.Options{Users: users, Logger: a.logger}),
				Users:     users,
				Roles:     data.NewRoleRepo(db),
				Admin:     authroles.AdminEmail(a.cfg.Auth.AdminEmail),
			}, accounts, a.logger.With("component", "devseed"))
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "seeded accounts: %d created, %d existing\n", res.Created, res.Existing)
		},
	}
}
