package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/storefront/config"
	"github.com/target/storefront/internal/adapters/devauth"
	"github.com/target/storefront/internal/adapters/identity"
	"github.com/target/storefront/internal/adapters/localauth"
	"github.com/target/storefront/internal/adapters/oidc"
	redisadapter "github.com/target/storefront/internal/adapters/redis"
	"github.com/target/storefront/internal/data"
	"github.com/target/storefront/internal/ports"
)

const tokenIssuer = "storefront"

// AuthDeps contains what the identity layer is built from.
type AuthDeps struct {
	Auth        config.AuthConfig
	DB          *sql.DB               // local mode user directory
	RedisClient redis.UniversalClient // sessions and auth events
	Logger      *slog.Logger
}

// BuildAuthenticator selects the credential checker for the configured auth mode.
//
//nolint:ireturn // the mode picks the implementation.
func BuildAuthenticator(ctx context.Context, deps AuthDeps) (ports.Authenticator, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Auth.Mode {
	case config.AuthModeMock:
		users, err := devauth.ParseUsers(deps.Auth.DevAuth.Users)
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return nil, devauth.ErrNoUsers
		}
		logger.WarnContext(ctx, "dev auth enabled; accounts are held in memory", "users", len(users))
		authn, err := devauth.New(devauth.Config{Users: users})
		if err != nil {
			return nil, err
		}
		return authn, nil

	case config.AuthModeOAuth:
		if !deps.Auth.OAuth.Complete() {
			return nil, errors.New("oauth mode requires discovery url, client id and client secret")
		}
		authn, err := oidc.New(ctx, oidc.Config{
			ClientID:      deps.Auth.OAuth.ClientID,
			ClientSecret:  deps.Auth.OAuth.ClientSecret,
			DiscoveryURL:  deps.Auth.OAuth.DiscoveryURL,
			Scope:         deps.Auth.OAuth.Scope,
			EmailExpr:     deps.Auth.OAuth.EmailExpr,
			MetadataExprs: deps.Auth.OAuth.MetadataExprs,
			Logger:        logger.With("component", "oidc"),
		})
		if err != nil {
			return nil, err
		}
		return authn, nil

	case config.AuthModeLocal, "":
		if deps.DB == nil {
			return nil, errors.New("local auth requires a database")
		}
		return localauth.New(localauth.Options{
			Users:  data.NewUserRepo(deps.DB),
			Logger: logger.With("component", "localauth"),
		}), nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", deps.Auth.Mode)
	}
}

// BuildBroker wires the authenticator to Redis-backed sessions and events.
func BuildBroker(authn ports.Authenticator, deps AuthDeps) (*identity.Broker, error) {
	if deps.RedisClient == nil {
		return nil, errors.New("identity broker requires a redis client")
	}
	tokens, err := identity.NewTokenIssuer(deps.Auth.TokenSecret, tokenIssuer, nil)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return identity.NewBroker(identity.BrokerOptions{
		Authenticator: authn,
		Sessions:      redisadapter.NewSessionRepository(deps.RedisClient, redisadapter.SessionRepositoryOptions{}),
		Events: redisadapter.NewEventBus(deps.RedisClient, redisadapter.EventBusOptions{
			Logger: logger.With("component", "auth_events"),
		}),
		Tokens:        tokens,
		SessionTTL:    deps.Auth.SessionTTL,
		RefreshWindow: deps.Auth.RefreshWindow,
		Logger:        logger.With("component", "identity_broker"),
	}), nil
}
