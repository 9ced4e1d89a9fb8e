package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers(" admin@shop.test:pw1:Store Owner , shopper@shop.test:pw2 ,")
	require.NoError(t, err)
	assert.Equal(t, []User{
		{Email: "admin@shop.test", Password: "pw1", Name: "Store Owner"},
		{Email: "shopper@shop.test", Password: "pw2"},
	}, users)

	_, err = ParseUsers("broken")
	assert.Error(t, err)
	_, err = ParseUsers(":pw")
	assert.Error(t, err)

	users, err = ParseUsers("")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	a, err := New(Config{Users: []User{{Email: "Owner@Shop.test", Password: "pw", Name: "Owner"}}})
	require.NoError(t, err)

	u, err := a.Authenticate(ctx, ports.Credentials{Email: "owner@shop.test", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, UserID("owner@shop.test"), u.ID)
	assert.Equal(t, "Owner", u.Metadata["name"])

	_, err = a.Authenticate(ctx, ports.Credentials{Email: "owner@shop.test", Password: "bad"})
	assert.True(t, apperrors.IsInvalidCredentials(err))

	_, err = a.Register(ctx, ports.SignUpInput{Email: "OWNER@shop.test", Password: "x"})
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, a.UpdatePassword(ctx, u.ID, "pw2"))
	_, err = a.Authenticate(ctx, ports.Credentials{Email: "owner@shop.test", Password: "pw2"})
	assert.NoError(t, err)

	assert.True(t, apperrors.IsNotFound(a.UpdatePassword(ctx, "missing", "x")))
}

func TestUserID_IsStable(t *testing.T) {
	assert.Equal(t, UserID("a@shop.test"), UserID(" A@Shop.Test "))
	assert.NotEqual(t, UserID("a@shop.test"), UserID("b@shop.test"))
}

func TestNew_RejectsDuplicateSeed(t *testing.T) {
	_, err := New(Config{Users: []User{
		{Email: "a@shop.test", Password: "1"},
		{Email: "A@shop.test", Password: "2"},
	}})
	assert.Error(t, err)
}
