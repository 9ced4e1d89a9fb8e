package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/target/storefront/config"
	"github.com/target/storefront/internal/adapters/authroles"
	"github.com/target/storefront/internal/core"
	"github.com/target/storefront/internal/data"
	httpx "github.com/target/storefront/internal/http"
	"github.com/target/storefront/internal/observability/metrics"
	"github.com/target/storefront/internal/observability/notify/slack"
	"github.com/target/storefront/internal/ports"
	"github.com/target/storefront/internal/service"
	"github.com/target/storefront/internal/service/failurenotifier"
)

// passwordFlagTTL bounds the forced password change marker set at provisioning.
const passwordFlagTTL = 30 * 24 * time.Hour

// ServiceDeps contains infrastructure the services are built on.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Roles     *data.RoleRepo
	Cache     *data.RedisCacheRepo
	Flags     *core.FlagService
	Broker    ports.IdentityBroker
	Resolver  *service.RoleResolver
	Registry  *service.SessionRegistry
	Metrics   *prometheus.Registry
	Incidents *failurenotifier.Service
	Health    map[string]httpx.HealthCheck
}

// NewServices builds the service graph: role store, flags, identity broker,
// resolver and the per-client session registry.
func NewServices(ctx context.Context, deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil || deps.DB == nil || deps.Redis == nil {
		return ServiceContainer{}, errors.New("services require config, database and redis")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	incidents := buildFailureNotifier(logger, cfg.Observability.Notifications)
	tel := service.Telemetry{
		Logger:    logger,
		Metrics:   metrics.NewAuthMetrics(reg),
		Incidents: incidents,
	}

	authDeps := AuthDeps{Auth: cfg.Auth, DB: deps.DB, RedisClient: deps.Redis, Logger: logger}
	authn, err := BuildAuthenticator(ctx, authDeps)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build authenticator: %w", err)
	}
	broker, err := BuildBroker(authn, authDeps)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build identity broker: %w", err)
	}

	roles := data.NewRoleRepo(deps.DB)
	cache := data.NewRedisCacheRepo(deps.Redis)
	flags := NewFlagService(cache)

	resolver := service.NewRoleResolver(service.RoleResolverOptions{
		Store: roles,
		Config: service.RoleResolverConfig{
			Admin:      authroles.AdminEmail(cfg.Auth.AdminEmail),
			Timeout:    cfg.Auth.RoleTimeout,
			RetryDelay: cfg.Auth.RoleRetryDelay,
		},
		Telemetry: tel,
	})

	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Deps: service.RegistryDeps{
			Broker: broker,
			Roles:  resolver,
			Flags:  flags,
		},
		Config:    service.RegistryConfig{IdleTimeout: cfg.Auth.ClientIdleTimeout},
		Telemetry: tel,
	})

	logger.InfoContext(ctx, "services initialized",
		"auth_mode", cfg.Auth.Mode,
		"admin_email", cfg.Auth.AdminEmail,
		"incident_sinks", incidents.Enabled(),
	)

	return ServiceContainer{
		Roles:     roles,
		Cache:     cache,
		Flags:     flags,
		Broker:    broker,
		Resolver:  resolver,
		Registry:  registry,
		Metrics:   reg,
		Incidents: incidents,
		Health: map[string]httpx.HealthCheck{
			"postgres": deps.DB.PingContext,
			"redis":    cache.Health,
		},
	}, nil
}

// NewFlagService builds the password-change flag store over the Redis cache.
func NewFlagService(cache core.CacheRepository) *core.FlagService {
	return core.NewFlagService(core.FlagServiceOptions{Cache: cache, TTL: passwordFlagTTL})
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	var sinks []failurenotifier.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			UserURLPrefix: cfg.Slack.UserURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}
