package ports_test

import (
	"testing"

	"github.com/target/storefront/internal/adapters/authroles"
	"github.com/target/storefront/internal/adapters/identity"
	redisadapter "github.com/target/storefront/internal/adapters/redis"
	mocks "github.com/target/storefront/internal/mocks/auth"
	"github.com/target/storefront/internal/ports"
)

// This test only verifies that our mocks and adapters conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*mocks.FakeProvider)(nil)
	var _ ports.Subscription = (*mocks.FakeSubscription)(nil)
	var _ ports.Authenticator = (*mocks.MemoryAuthenticator)(nil)
	var _ ports.SessionRepository = (*mocks.MemorySessionRepository)(nil)
	var _ ports.EventBus = (*mocks.MemoryEventBus)(nil)
	var _ ports.Navigator = (*mocks.RecordingNavigator)(nil)
	var _ ports.Notifier = (*mocks.RecordingNavigator)(nil)

	var _ ports.IdentityBroker = (*identity.Broker)(nil)
	var _ ports.IdentityProvider = (*identity.ClientProvider)(nil)
	var _ ports.SessionRepository = (*redisadapter.SessionRepository)(nil)
	var _ ports.EventBus = (*redisadapter.EventBus)(nil)
	var _ ports.AdminMatcher = authroles.AdminEmail("")
}
