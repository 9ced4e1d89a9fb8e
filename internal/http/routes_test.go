package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/storefront/internal/adapters/identity"
	domainauth "github.com/target/storefront/internal/domain/auth"
	mocks "github.com/target/storefront/internal/mocks/auth"
	"github.com/target/storefront/internal/observability/metrics"
	"github.com/target/storefront/internal/ports"
	"github.com/target/storefront/internal/service"
)

const (
	testAdminEmail = "admin@shop.test"
	testPassword   = "correct-horse"
)

type harness struct {
	server   *httptest.Server
	client   *http.Client
	auth     *mocks.MemoryAuthenticator
	roles    *mocks.CountingRoleStore
	registry *service.SessionRegistry
	health   map[string]HealthCheck
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	authn := mocks.NewMemoryAuthenticator()
	for _, email := range []string{testAdminEmail, "shopper@shop.test"} {
		_, err := authn.Register(context.Background(), ports.SignUpInput{Email: email, Password: testPassword})
		require.NoError(t, err)
	}

	tokens, err := identity.NewTokenIssuer("test-secret", "storefront-test", nil)
	require.NoError(t, err)
	broker := identity.NewBroker(identity.BrokerOptions{
		Authenticator: authn,
		Sessions:      mocks.NewMemorySessionRepository(),
		Events:        mocks.NewMemoryEventBus(),
		Tokens:        tokens,
	})

	reg := prometheus.NewRegistry()
	tel := service.Telemetry{Metrics: metrics.NewAuthMetrics(reg)}
	store := mocks.NewCountingRoleStore()
	resolver := service.NewRoleResolver(service.RoleResolverOptions{
		Store:     store,
		Config:    service.RoleResolverConfig{Admin: mocks.AdminEmail(testAdminEmail)},
		Telemetry: tel,
	})
	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Deps:      service.RegistryDeps{Broker: broker, Roles: resolver},
		Telemetry: tel,
	})
	t.Cleanup(registry.Close)

	h := &harness{auth: authn, roles: store, registry: registry, health: map[string]HealthCheck{}}
	handler, err := NewRouter(RouterOptions{
		Registry:   registry,
		TemplateFS: os.DirFS("../../frontend/templates"),
		Gatherer:   reg,
		Health:     h.health,
		GuardWait:  2 * time.Second,
	})
	require.NoError(t, err)

	h.server = httptest.NewServer(handler)
	t.Cleanup(h.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 5 * time.Second,
	}
	return h
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (h *harness) postJSON(t *testing.T, path string, body any) (*http.Response, string) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, strings.NewReader(string(b)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (h *harness) signIn(t *testing.T, email string) *http.Response {
	t.Helper()
	// First visit establishes the client cookie and lets the bootstrap settle.
	h.get(t, "/auth/login")
	resp, _ := h.postForm(t, "/auth/login", url.Values{"email": {email}, "password": {testPassword}})
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRouter_FirstVisitIssuesClientCookie(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome to the storefront")

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == ClientCookieName {
			found = true
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	assert.True(t, found, "client cookie should be set")
	assert.Equal(t, 1, h.registry.Len())
}

func TestRouter_AdminSignInSkipsRoleStore(t *testing.T) {
	h := newHarness(t)

	resp := h.signIn(t, "ADMIN@shop.test")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteAdminDashboard, resp.Header.Get("Location"))

	resp, body := h.get(t, domainauth.RouteAdminDashboard)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Administration")
	assert.Equal(t, 0, h.roles.Calls("RolesForUser"))
}

func TestRouter_ClientSignInAssignsDefaultRole(t *testing.T) {
	h := newHarness(t)

	resp := h.signIn(t, "shopper@shop.test")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteClientDashboard, resp.Header.Get("Location"))

	resp, body := h.get(t, domainauth.RouteClientDashboard)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your account")

	// A client without admin goes home, never to login.
	resp, _ = h.get(t, "/admin/reports")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteHome, resp.Header.Get("Location"))
}

func TestRouter_SignedOutGuardRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get(t, "/client/orders")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteLogin, resp.Header.Get("Location"))

	resp, _ = h.get(t, "/account/password")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteLogin, resp.Header.Get("Location"))
}

func TestRouter_InvalidCredentialsShownVerbatim(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/auth/login")

	resp, body := h.postForm(t, "/auth/login", url.Values{"email": {"shopper@shop.test"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `value="shopper@shop.test"`)
}

func TestRouter_JSONSignInAndStatus(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/")

	resp, body := h.postJSON(t, "/auth/login", map[string]string{"email": testAdminEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var nav struct {
		Redirect string `json:"redirect"`
		Reload   bool   `json:"reload"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &nav))
	assert.Equal(t, domainauth.RouteAdminDashboard, nav.Redirect)
	assert.False(t, nav.Reload)

	resp, body = h.get(t, "/auth/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status service.StatusView
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.True(t, status.Roles.IsAdmin)
	assert.True(t, status.Roles.IsClient)
	require.NotNil(t, status.Session.User)
	assert.Equal(t, testAdminEmail, status.Session.User.Email)
	require.NotNil(t, status.Session.Session)
	assert.Empty(t, status.Session.Session.AccessToken)
}

func TestRouter_RefreshRolesRequiresSession(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/")

	resp, body := h.postJSON(t, "/auth/roles/refresh", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)

	h.signIn(t, "shopper@shop.test")
	resp, body = h.postJSON(t, "/auth/roles/refresh", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var roles domainauth.UserRoles
	require.NoError(t, json.Unmarshal([]byte(body), &roles))
	assert.True(t, roles.IsClient)
	assert.False(t, roles.IsAdmin)
}

func TestRouter_LogoutReloadsHome(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "shopper@shop.test")
	require.Equal(t, 1, h.registry.Len())

	resp, _ := h.postForm(t, "/auth/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteHome, resp.Header.Get("Location"))
	assert.Equal(t, 0, h.registry.Len(), "full page navigation drops the client's manager")

	resp, _ = h.get(t, domainauth.RouteClientDashboard)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteLogin, resp.Header.Get("Location"))
}

func TestRouter_RegisterSendsToLoginWithNotice(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/auth/register")

	resp, _ := h.postForm(t, "/auth/register", url.Values{
		"email":            {"new@shop.test"},
		"password":         {"long-enough-pw"},
		"confirm_password": {"long-enough-pw"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteLogin, resp.Header.Get("Location"))

	resp, body := h.get(t, domainauth.RouteLogin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Check your email")
}

func TestRouter_RegisterValidation(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/auth/register")

	resp, body := h.postForm(t, "/auth/register", url.Values{
		"email":            {"new@shop.test"},
		"password":         {"long-enough-pw"},
		"confirm_password": {"different-pw"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Passwords do not match.")

	resp, body = h.postForm(t, "/auth/register", url.Values{"email": {"new@shop.test"}, "password": {"short"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "at least 8 characters")
}

func TestRouter_ChangePassword(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "shopper@shop.test")

	resp, body := h.get(t, "/account/password")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Change password")

	resp, _ = h.postForm(t, "/account/password", url.Values{
		"password":         {"brand-new-pass"},
		"confirm_password": {"brand-new-pass"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, domainauth.RouteClientDashboard, resp.Header.Get("Location"))

	_, err := h.auth.Authenticate(context.Background(), ports.Credentials{Email: "shopper@shop.test", Password: "brand-new-pass"})
	assert.NoError(t, err)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	h.health["postgres"] = func(context.Context) error { return errors.New("down") }
	resp, body = h.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "postgres")

	h.get(t, "/")
	resp, body = h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "storefront_")
}

func TestRouter_NotFound(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
}

func TestNewRouter_RequiresRegistry(t *testing.T) {
	_, err := NewRouter(RouterOptions{TemplateFS: os.DirFS("../../frontend/templates")})
	require.Error(t, err)
}
