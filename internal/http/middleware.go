package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
	"github.com/target/storefront/internal/service"
)

// ClientCookieName identifies a browser client across requests.
const ClientCookieName = "sf_client"

const clientCookieMaxAge = 365 * 24 * 60 * 60

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that marks requests expecting HTML,
// so handlers can choose between pages and JSON.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	return isBrowserRequest(r)
}

func isBrowserRequest(r *http.Request) bool {
	switch r.URL.Path {
	case "/auth/status", "/auth/roles/refresh", "/healthz", "/metrics":
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// ClientSession attaches the browser client's SessionManager to the request,
// issuing a client cookie on first contact.
func ClientSession(reg *service.SessionRegistry, cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIDFromRequest(r)
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, cookies.clientCookie(clientID))
			}

			m, err := reg.Acquire(ports.ClientInfo{ID: clientID, UserAgent: r.UserAgent()}, r.URL.Path)
			if err != nil {
				WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: err})
				return
			}
			next.ServeHTTP(w, r.WithContext(withManager(r.Context(), m)))
		})
	}
}

func clientIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(ClientCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

// FollowNavigation applies a redirect decided for this client while it was on
// the requested page. Reload navigations also drop the client's manager so the
// next page starts from a fresh bootstrap.
func FollowNavigation(reg *service.SessionRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := ManagerFromContext(r.Context())
			if m == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}
			if nav, ok := m.Browser.Visit(r.URL.Path); ok {
				applyNavigation(w, r, reg, m, nav)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability guards a page. While roles are still resolving the
// loading page is served; unauthenticated users go to login, and users
// without the capability go home.
func RequireCapability(capability domainauth.Capability, p *pages) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := ManagerFromContext(r.Context())
			if m == nil {
				redirect(w, r, domainauth.RouteLogin)
				return
			}

			attempt := m.Guard.Begin(capability, func(target string) {
				redirect(w, r, target)
			})
			d := attempt.Wait(r.Context(), p.guardWait)
			switch d.Outcome {
			case service.GuardAllow:
				next.ServeHTTP(w, r)
			case service.GuardLoading:
				p.renderLoading(w, r, m)
			default:
				// redirect already written by the attempt
			}
		})
	}
}

func applyNavigation(
	w http.ResponseWriter,
	r *http.Request,
	reg *service.SessionRegistry,
	m *service.SessionManager,
	nav service.Navigation,
) {
	if nav.Reload {
		reg.Drop(m.ClientID)
		if IsHTMX(r) {
			SetHXRefresh(w, true)
		}
	}
	redirect(w, r, nav.To)
}

// redirect sends the browser to target with a 303, or via Hx-Redirect for htmx.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMX(r) {
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type managerKey struct{}

func withManager(ctx context.Context, m *service.SessionManager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// ManagerFromContext returns the client's SessionManager, or nil outside ClientSession.
func ManagerFromContext(ctx context.Context) *service.SessionManager {
	m, _ := ctx.Value(managerKey{}).(*service.SessionManager)
	return m
}

// CookieConfig controls the client cookie.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (c CookieConfig) clientCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   clientCookieMaxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
