package auth

import "strings"

// Route surface used for redirect decisions.
const (
	RouteHome            = "/"
	RouteLogin           = "/auth/login"
	RouteRegister        = "/auth/register"
	RouteAdminDashboard  = "/admin/dashboard"
	RouteClientDashboard = "/client/dashboard"

	adminPrefix  = "/admin/"
	clientPrefix = "/client/"
)

// IsEntryRoute reports whether path is one the resolver may redirect away from
// once roles are known: home, login or register.
func IsEntryRoute(path string) bool {
	switch CleanPath(path) {
	case RouteHome, RouteLogin, RouteRegister:
		return true
	default:
		return false
	}
}

// IsPublicRoute reports whether path can be viewed signed out.
func IsPublicRoute(path string) bool {
	p := CleanPath(path)
	if IsEntryRoute(p) {
		return true
	}
	return strings.HasPrefix(p, "/auth/")
}

// RequiredCapability returns the capability implied by a path prefix.
// ok is false for routes outside the admin and client areas.
func RequiredCapability(path string) (Capability, bool) {
	p := CleanPath(path)
	switch {
	case p == "/admin" || strings.HasPrefix(p, adminPrefix):
		return CapabilityAdmin, true
	case p == "/client" || strings.HasPrefix(p, clientPrefix):
		return CapabilityClient, true
	default:
		return "", false
	}
}

// DashboardFor returns the landing route for the given roles.
func DashboardFor(r UserRoles) string {
	r = r.Normalize()
	switch {
	case r.IsAdmin:
		return RouteAdminDashboard
	case r.IsClient:
		return RouteClientDashboard
	default:
		return RouteHome
	}
}

// PostResolveRedirect decides where a settled session should be sent from path.
// ok is false when the user should stay where they are.
func PostResolveRedirect(path string, r UserRoles) (string, bool) {
	if !IsEntryRoute(path) {
		return "", false
	}
	target := DashboardFor(r)
	if target == CleanPath(path) {
		return "", false
	}
	if target == RouteHome {
		// Unprivileged users have no dashboard; leave them on the entry page.
		return "", false
	}
	return target, true
}

// CleanPath strips query and fragment and trailing slashes; empty becomes home.
func CleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return RouteHome
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return RouteHome
		}
	}
	return path
}
