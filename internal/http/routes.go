// Package httpx is the storefront's HTTP surface: server-rendered pages, the
// auth form posts and a JSON status endpoint, all driven by the per-client
// SessionManager.
package httpx

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/service"
)

// DefaultGuardWait is how long a guarded page waits for roles before serving
// the loading page instead.
const DefaultGuardWait = 250 * time.Millisecond

// RouterOptions holds everything the router needs.
type RouterOptions struct {
	Registry   *service.SessionRegistry // required
	TemplateFS fs.FS                    // required
	Gatherer   prometheus.Gatherer      // optional; /metrics is omitted when nil
	Health     map[string]HealthCheck
	Cookies    CookieConfig
	GuardWait  time.Duration
	IsDev      bool
	Logger     *slog.Logger
}

// NewRouter creates the chi router.
func NewRouter(opts RouterOptions) (http.Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("router requires a session registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http")
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: opts.TemplateFS,
		DevMode:    opts.IsDev,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	guardWait := opts.GuardWait
	if guardWait <= 0 {
		guardWait = DefaultGuardWait
	}

	p := &pages{renderer: tr, guardWait: guardWait, logger: logger}
	auth := &AuthHandlers{Registry: opts.Registry, Pages: p, Logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	r.Use(BrowserDetection())

	r.Method(http.MethodGet, "/healthz", healthHandler(opts.Health))
	r.Method(http.MethodHead, "/healthz", healthHandler(opts.Health))
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(ClientSession(opts.Registry, opts.Cookies))

		r.Get("/auth/status", auth.Status)
		r.Post("/auth/roles/refresh", auth.RefreshRoles)
		r.Post("/auth/logout", auth.Logout)
		r.Post("/auth/login", auth.Login)
		r.Post("/auth/register", auth.Register)

		r.Group(func(r chi.Router) {
			r.Use(FollowNavigation(opts.Registry))

			r.Get("/", p.Home)
			r.Get("/auth/login", auth.LoginPage)
			r.Get("/auth/register", auth.RegisterPage)

			r.With(RequireCapability(domainauth.CapabilityNone, p)).Get("/account/password", auth.PasswordPage)
			r.With(RequireCapability(domainauth.CapabilityNone, p)).Post("/account/password", auth.ChangePassword)

			r.Route("/client", func(r chi.Router) {
				r.Use(RequireCapability(domainauth.CapabilityClient, p))
				r.Get("/dashboard", p.ClientDashboard)
				r.Get("/*", p.Area)
			})
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireCapability(domainauth.CapabilityAdmin, p))
				r.Get("/dashboard", p.AdminDashboard)
				r.Get("/*", p.Area)
			})
		})
	})

	r.NotFound(p.NotFound)
	return r, nil
}
