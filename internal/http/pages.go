package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
	"github.com/target/storefront/internal/service"
)

const loadingRefreshSeconds = 1

// pageData is what every page template receives.
type pageData struct {
	Title       string
	Path        string
	User        *domainauth.User
	Session     *domainauth.Session
	Roles       domainauth.UserRoles
	Loading     bool
	Notices     []ports.Notice
	MustChange  bool
	Error       string
	FieldErrors map[string]string
	Email       string

	// RefreshAfter makes the page reload itself after this many seconds.
	RefreshAfter int
}

type pages struct {
	renderer  *TemplateRenderer
	guardWait time.Duration
	logger    *slog.Logger
}

// data fills the session part of a page from the request's manager. Notices
// are drained so each one is shown once.
func (p *pages) data(r *http.Request, title string) pageData {
	d := pageData{Title: title, Path: domainauth.CleanPath(r.URL.Path)}
	m := ManagerFromContext(r.Context())
	if m == nil {
		return d
	}
	snap := m.Store.Snapshot()
	d.User = snap.User
	d.Session = snap.Session
	if d.Session != nil {
		d.Session.AccessToken = ""
	}
	d.Roles = snap.Roles()
	d.Loading = snap.IsLoading
	d.Notices = m.Browser.DrainNotices()
	d.MustChange = m.Ops.PasswordChangeRequired(r.Context())
	return d
}

func (p *pages) render(w http.ResponseWriter, r *http.Request, status int, page string, d pageData) {
	if err := p.renderer.Render(w, status, page, d); err != nil {
		p.logger.ErrorContext(r.Context(), "render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderLoading serves the indicator shown while a guarded page waits on roles.
func (p *pages) renderLoading(w http.ResponseWriter, r *http.Request, m *service.SessionManager) {
	d := p.data(r, "Loading")
	d.RefreshAfter = loadingRefreshSeconds
	w.Header().Set("Cache-Control", "no-store")
	p.render(w, r, http.StatusOK, "loading", d)
}

// Home renders the landing page. Signed-in users with a dashboard are moved
// there by FollowNavigation once their roles settle.
func (p *pages) Home(w http.ResponseWriter, r *http.Request) {
	d := p.data(r, "Storefront")
	if d.Loading {
		d.RefreshAfter = loadingRefreshSeconds
	}
	p.render(w, r, http.StatusOK, "home", d)
}

// ClientDashboard renders the client landing page.
func (p *pages) ClientDashboard(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "client_dashboard", p.data(r, "Your account"))
}

// AdminDashboard renders the admin landing page, with a banner while the
// administrator still has to change the provisioned password.
func (p *pages) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "admin_dashboard", p.data(r, "Administration"))
}

// Area renders any other page under the admin or client sections.
func (p *pages) Area(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "area", p.data(r, "Storefront"))
}

// NotFound renders the 404 page.
func (p *pages) NotFound(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
		return
	}
	p.render(w, r, http.StatusNotFound, "notfound", p.data(r, "Not found"))
}
