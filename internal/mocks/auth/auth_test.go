package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

func TestFakeProvider_SignInEmitsEvent(t *testing.T) {
	ctx := context.Background()
	p := NewFakeProvider()
	p.EmitEvents = true
	p.AddUser("shopper@example.com", "hunter22")

	sub, err := p.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = p.SignInWithPassword(ctx, ports.Credentials{Email: "Shopper@Example.com", Password: "hunter22"})
	require.NoError(t, err)

	ev := <-sub.Events()
	assert.Equal(t, domainauth.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "shopper@example.com", ev.Session.User.Email)

	sess, err := p.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
}

func TestFakeProvider_InvalidCredentials(t *testing.T) {
	p := NewFakeProvider()
	p.AddUser("shopper@example.com", "hunter22")

	_, err := p.SignInWithPassword(context.Background(), ports.Credentials{Email: "shopper@example.com", Password: "nope"})
	assert.True(t, apperrors.IsInvalidCredentials(err))
}

func TestFakeSubscription_UnsubscribeClosesEvents(t *testing.T) {
	s := NewFakeSubscription()
	s.Unsubscribe()
	s.Unsubscribe()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.False(t, s.Emit(domainauth.AuthEvent{Type: domainauth.EventOther}))
}

func TestMemorySessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository()

	require.Error(t, repo.Save(ctx, "", domainauth.Session{}))
	require.NoError(t, repo.Save(ctx, "client-1", domainauth.Session{ID: "s1"}))

	got, err := repo.Get(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	require.NoError(t, repo.Delete(ctx, "client-1"))
	_, err = repo.Get(ctx, "client-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCountingRoleStore(t *testing.T) {
	ctx := context.Background()
	s := NewCountingRoleStore()

	require.NoError(t, s.AssignClientRole(ctx, "u1"))
	require.NoError(t, s.AssignClientRole(ctx, "u1"))
	assert.Equal(t, []domainauth.Role{domainauth.RoleClient}, s.Rows("u1"))

	err := s.InsertRole(ctx, "u1", domainauth.RoleClient)
	assert.True(t, apperrors.IsConflict(err))

	s.QueryErrs = []error{errors.New("reset")}
	_, err = s.RolesForUser(ctx, "u1")
	require.Error(t, err)
	rows, err := s.RolesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, s.Calls("query"))

	s.Seed("u2", domainauth.RoleAdmin)
	list, err := s.ListAssignments(ctx, core.ListAssignmentsOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	ok, err := s.RevokeRole(ctx, "u2", domainauth.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordingNavigator(t *testing.T) {
	n := NewRecordingNavigator("/auth/login")
	n.Navigate("/client/dashboard")
	n.Reload("/")
	n.Notify(ports.Notice{Level: ports.NoticeInfo, Message: "hi"})

	assert.Equal(t, []string{"/client/dashboard"}, n.Navigations())
	assert.Equal(t, []string{"/"}, n.ReloadTargets())
	assert.Equal(t, "/", n.CurrentPath())
	assert.Len(t, n.RecordedNotices(), 1)
	assert.True(t, AdminEmail("Admin@Shop.test").IsAdminEmail(" admin@shop.test "))
	assert.False(t, AdminEmail("").IsAdminEmail(""))
}
