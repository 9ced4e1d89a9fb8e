package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEntryRoute(t *testing.T) {
	for _, p := range []string{"/", "", "/auth/login", "/auth/login/", "/auth/register?x=1"} {
		assert.True(t, IsEntryRoute(p), p)
	}
	for _, p := range []string{"/admin/dashboard", "/client/orders", "/auth/status"} {
		assert.False(t, IsEntryRoute(p), p)
	}
}

func TestIsPublicRoute(t *testing.T) {
	assert.True(t, IsPublicRoute("/auth/signed-out"))
	assert.True(t, IsPublicRoute("/"))
	assert.False(t, IsPublicRoute("/client/dashboard"))
	assert.False(t, IsPublicRoute("/account/password"))
}

func TestRequiredCapability(t *testing.T) {
	c, ok := RequiredCapability("/admin/products/42")
	assert.True(t, ok)
	assert.Equal(t, CapabilityAdmin, c)

	c, ok = RequiredCapability("/client")
	assert.True(t, ok)
	assert.Equal(t, CapabilityClient, c)

	_, ok = RequiredCapability("/administrator")
	assert.False(t, ok)
}

func TestDashboardFor(t *testing.T) {
	assert.Equal(t, RouteAdminDashboard, DashboardFor(UserRoles{IsAdmin: true}))
	assert.Equal(t, RouteClientDashboard, DashboardFor(UserRoles{IsClient: true}))
	assert.Equal(t, RouteHome, DashboardFor(UserRoles{}))
}

func TestPostResolveRedirect(t *testing.T) {
	admin := UserRoles{IsAdmin: true, IsClient: true}
	client := UserRoles{IsClient: true}

	target, ok := PostResolveRedirect("/auth/login", admin)
	assert.True(t, ok)
	assert.Equal(t, RouteAdminDashboard, target)

	target, ok = PostResolveRedirect("/", client)
	assert.True(t, ok)
	assert.Equal(t, RouteClientDashboard, target)

	// Already inside an authorised area.
	_, ok = PostResolveRedirect("/admin/products", admin)
	assert.False(t, ok)

	// No dashboard for unprivileged users.
	_, ok = PostResolveRedirect("/auth/login", UserRoles{})
	assert.False(t, ok)
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "/", CleanPath(""))
	assert.Equal(t, "/", CleanPath("/?next=x"))
	assert.Equal(t, "/client/orders", CleanPath("/client/orders/#top"))
	assert.Equal(t, "/", CleanPath("///"))
}
