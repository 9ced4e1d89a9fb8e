// Package authroles recognises privileged identities from configuration.
package authroles

import (
	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
)

// AdminEmail matches the configured administrator email case-insensitively.
// The zero value matches nobody.
type AdminEmail string

var _ ports.AdminMatcher = AdminEmail("")

// IsAdminEmail reports whether email is the administrator's.
func (a AdminEmail) IsAdminEmail(email string) bool {
	want := domainauth.NormalizeEmail(string(a))
	return want != "" && domainauth.NormalizeEmail(email) == want
}
