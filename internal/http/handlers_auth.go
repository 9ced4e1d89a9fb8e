package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
	"github.com/target/storefront/internal/service"
)

const maxFormBytes = 64 << 10

// AuthHandlers serves the sign-in, sign-up, sign-out and status endpoints.
type AuthHandlers struct {
	Registry *service.SessionRegistry
	Pages    *pages
	Logger   *slog.Logger
}

type credentialsForm struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Confirm  string            `json:"confirm_password"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoginPage renders the sign-in form.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.Pages.render(w, r, http.StatusOK, "login", h.Pages.data(r, "Sign in"))
}

// Login signs the client in and answers with the destination the sign-in chose.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	form, ok := h.decode(w, r)
	if !ok {
		return
	}

	err := m.Ops.SignIn(r.Context(), ports.Credentials{Email: form.Email, Password: form.Password})
	if err != nil {
		h.fail(w, r, "login", "Sign in", form, err)
		return
	}
	h.respondNavigation(w, r, m, domainauth.DashboardFor(m.Store.Snapshot().Roles()))
}

// RegisterPage renders the sign-up form.
func (h *AuthHandlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.Pages.render(w, r, http.StatusOK, "register", h.Pages.data(r, "Create account"))
}

// Register creates an account and sends the client to sign in.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	if form.Confirm != "" && form.Confirm != form.Password {
		h.fail(w, r, "register", "Create account", form,
			apperrors.ValidationField("confirm_password", "Passwords do not match."))
		return
	}

	err := m.Ops.SignUp(r.Context(), ports.SignUpInput{
		Email:    form.Email,
		Password: form.Password,
		Metadata: form.Metadata,
	})
	if err != nil {
		h.fail(w, r, "register", "Create account", form, err)
		return
	}
	h.respondNavigation(w, r, m, domainauth.RouteLogin)
}

// Logout signs the client out and reloads home.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	if err := m.Ops.SignOut(r.Context()); err != nil {
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		d := h.Pages.data(r, "Home")
		d.Error = apperrors.UserMessage(err, "Sign out failed. Please try again.")
		h.Pages.render(w, r, StatusFor(err), "home", d)
		return
	}
	h.respondNavigation(w, r, m, domainauth.RouteHome)
}

// Status returns the client's session snapshot, pending redirect and notices.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	WriteJSON(w, http.StatusOK, m.Status(r.Context()))
}

// RefreshRoles re-runs role resolution for the signed-in user.
func (h *AuthHandlers) RefreshRoles(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	roles, err := m.Ops.RefreshRoles(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, roles)
}

// PasswordPage renders the change-password form.
func (h *AuthHandlers) PasswordPage(w http.ResponseWriter, r *http.Request) {
	h.Pages.render(w, r, http.StatusOK, "password", h.Pages.data(r, "Change password"))
}

// ChangePassword updates the signed-in user's password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	m := ManagerFromContext(r.Context())
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	if form.Confirm != form.Password {
		h.fail(w, r, "password", "Change password", form,
			apperrors.ValidationField("confirm_password", "Passwords do not match."))
		return
	}
	if err := m.Ops.ChangePassword(r.Context(), form.Password); err != nil {
		h.fail(w, r, "password", "Change password", form, err)
		return
	}
	h.respondNavigation(w, r, m, domainauth.DashboardFor(m.Store.Snapshot().Roles()))
}

// decode reads a form post or a JSON body.
func (h *AuthHandlers) decode(w http.ResponseWriter, r *http.Request) (credentialsForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	var form credentialsForm

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&form); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
			return form, false
		}
		return form, true
	}

	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return form, false
	}
	form.Email = r.PostForm.Get("email")
	form.Password = r.PostForm.Get("password")
	form.Confirm = r.PostForm.Get("confirm_password")
	if name := strings.TrimSpace(r.PostForm.Get("name")); name != "" {
		form.Metadata = map[string]string{"name": name}
	}
	return form, true
}

// fail shows an operation error. Browsers get the form again with the
// provider's message; API clients get JSON.
func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, page, title string, form credentialsForm, err error) {
	if apperrors.GetCode(err) == "" {
		h.logger().ErrorContext(r.Context(), "auth operation failed", "page", page, "error", err)
	}
	if !IsBrowserRequest(r) {
		WriteAppError(w, err)
		return
	}
	d := h.Pages.data(r, title)
	d.Email = form.Email
	d.Error = apperrors.UserMessage(err, "Something went wrong. Please try again.")
	if field := apperrors.GetField(err); field != "" {
		d.FieldErrors = map[string]string{field: d.Error}
	}
	h.Pages.render(w, r, StatusFor(err), page, d)
}

// respondNavigation answers a post with the navigation it caused, or with
// fallback when none is pending.
func (h *AuthHandlers) respondNavigation(w http.ResponseWriter, r *http.Request, m *service.SessionManager, fallback string) {
	nav, ok := m.Browser.Take()
	if !ok {
		nav = service.Navigation{To: fallback}
	}
	if !IsBrowserRequest(r) {
		if nav.Reload {
			h.Registry.Drop(m.ClientID)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"redirect": nav.To, "reload": nav.Reload})
		return
	}
	applyNavigation(w, r, h.Registry, m, nav)
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
