package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/target/storefront/config"
	"github.com/target/storefront/internal/bootstrap"
)

const defaultCommandTimeout = 5 * time.Minute

// app carries what every subcommand shares once config is loaded.
type app struct {
	cfg     config.AppConfig
	logger  *slog.Logger
	timeout time.Duration
}

func main() {
	logger := bootstrap.InitLogger("info", false)
	a := &app{logger: logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to the shell
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront-admin",
		Short: "Administrative tasks for the storefront",
		Long: `storefront-admin runs schema migrations and manages role assignments.

It reads the same environment as the storefront server (DB_*, REDIS_*, AUTH_*).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev)
			return nil
		},
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", defaultCommandTimeout, "overall command timeout")

	root.AddCommand(
		newMigrateCmd(a),
		newProvisionAdminCmd(a),
		newGrantRoleCmd(a),
		newRevokeRoleCmd(a),
		newListRolesCmd(a),
		newSeedRolesCmd(a),
		newDevSeedCmd(a),
	)
	return root
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func (a *app) connectDB(ctx context.Context) (*sql.DB, func(), error) {
	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: a.cfg.Postgres, Logger: a.logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	return db, func() {
		if closeErr := db.Close(); closeErr != nil {
			a.logger.Warn("db close failed", "error", closeErr)
		}
	}, nil
}

//nolint:ireturn // single or cluster client is picked by config.
func (a *app) connectRedis(ctx context.Context) (redis.UniversalClient, func(), error) {
	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: a.cfg.Redis, Logger: a.logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, func() {
		if closeErr := client.Close(); closeErr != nil {
			a.logger.Warn("redis close failed", "error", closeErr)
		}
	}, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			a.logger.InfoContext(ctx, "running database migrations")
			if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
				return err
			}
			return writeln(cmd.OutOrStdout(), "migrations completed")
		},
	}
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
