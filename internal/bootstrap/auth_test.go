package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/storefront/config"
	"github.com/target/storefront/internal/adapters/devauth"
	"github.com/target/storefront/internal/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAuthenticator_MockMode(t *testing.T) {
	authn, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{Users: "admin@shop.test:pw:Admin"},
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	user, err := authn.Authenticate(context.Background(), ports.Credentials{Email: "admin@shop.test", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "admin@shop.test", user.Email)
}

func TestBuildAuthenticator_MockModeWithoutUsers(t *testing.T) {
	_, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth:   config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{Users: " , "}},
		Logger: quietLogger(),
	})
	require.ErrorIs(t, err, devauth.ErrNoUsers)
}

func TestBuildAuthenticator_MockModeMalformedUsers(t *testing.T) {
	_, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth:   config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{Users: "no-password"}},
		Logger: quietLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestBuildAuthenticator_OAuthIncomplete(t *testing.T) {
	_, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth:   config.AuthConfig{Mode: config.AuthModeOAuth, OAuth: config.OAuthConfig{ClientID: "storefront"}},
		Logger: quietLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery url")
}

func TestBuildAuthenticator_LocalRequiresDB(t *testing.T) {
	_, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth:   config.AuthConfig{Mode: config.AuthModeLocal},
		Logger: quietLogger(),
	})
	require.Error(t, err)
}

func TestBuildAuthenticator_UnknownMode(t *testing.T) {
	_, err := BuildAuthenticator(context.Background(), AuthDeps{
		Auth:   config.AuthConfig{Mode: config.AuthMode("saml")},
		Logger: quietLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saml")
}

func TestBuildBroker(t *testing.T) {
	authn, err := devauth.New(devauth.Config{Users: []devauth.User{{Email: "a@shop.test", Password: "pw"}}})
	require.NoError(t, err)

	t.Run("requires redis", func(t *testing.T) {
		_, err := BuildBroker(authn, AuthDeps{Auth: config.AuthConfig{TokenSecret: "s"}})
		require.Error(t, err)
	})

	t.Run("requires token secret", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		t.Cleanup(func() { _ = client.Close() })

		_, err := BuildBroker(authn, AuthDeps{RedisClient: client})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token issuer")
	})

	t.Run("builds without connecting", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		t.Cleanup(func() { _ = client.Close() })

		broker, err := BuildBroker(authn, AuthDeps{
			Auth:        config.AuthConfig{TokenSecret: "s", SessionTTL: config.DefaultSessionTTL},
			RedisClient: client,
			Logger:      quietLogger(),
		})
		require.NoError(t, err)
		assert.NotNil(t, broker)
	})
}
