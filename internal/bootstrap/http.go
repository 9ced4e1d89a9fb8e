package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	storefront "github.com/target/storefront"
	"github.com/target/storefront/config"
	httpx "github.com/target/storefront/internal/http"
)

const devTemplateDir = "frontend/templates"

// TemplateFS returns the page templates. Dev mode reads them from disk so
// edits show up without a rebuild.
func TemplateFS(isDev bool) (fs.FS, error) {
	if isDev {
		if info, err := os.Stat(devTemplateDir); err == nil && info.IsDir() {
			return os.DirFS(devTemplateDir), nil
		}
	}
	sub, err := fs.Sub(storefront.TemplateFS, devTemplateDir)
	if err != nil {
		return nil, fmt.Errorf("embedded templates: %w", err)
	}
	return sub, nil
}

// BuildHTTPHandler assembles the router for the wired services.
func BuildHTTPHandler(cfg *config.AppConfig, svc ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	templates, err := TemplateFS(cfg.IsDev)
	if err != nil {
		return nil, err
	}
	return httpx.NewRouter(httpx.RouterOptions{
		Registry:   svc.Registry,
		TemplateFS: templates,
		Gatherer:   svc.Metrics,
		Health:     svc.Health,
		Cookies: httpx.CookieConfig{
			Domain: cfg.HTTP.CookieDomain,
			Secure: cfg.HTTP.CookieSecure,
		},
		IsDev:  cfg.IsDev,
		Logger: logger.With("component", "http"),
	})
}

// NewHTTPServer wraps handler in a server using the configured timeouts.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	logger.InfoContext(ctx, "shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}

// RunConfig contains what RunServicesWithShutdown starts.
type RunConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP and sweeps idle clients until SIGINT,
// SIGTERM or a service failure, then shuts everything down.
func RunServicesWithShutdown(ctx context.Context, cfg RunConfig) error {
	if cfg.Config == nil || cfg.Services.Registry == nil {
		return errors.New("run config requires AppConfig and a session registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler, err := BuildHTTPHandler(cfg.Config, cfg.Services, logger)
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}
	server := NewHTTPServer(cfg.Config.HTTP, handler)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return cfg.Services.Registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		return ShutdownHTTPServer(context.WithoutCancel(gctx), server, cfg.Config.HTTP.ShutdownTimeout, logger)
	})

	return g.Wait()
}
