package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

type fakeDirectory struct {
	users map[string]domainauth.User
}

func (f *fakeDirectory) Register(_ context.Context, in ports.SignUpInput) (domainauth.User, error) {
	if _, ok := f.users[in.Email]; ok {
		return domainauth.User{}, apperrors.Conflict("User already registered")
	}
	u := domainauth.User{ID: "id-" + in.Email, Email: in.Email}
	f.users[in.Email] = u
	return u, nil
}

func (f *fakeDirectory) GetByEmail(_ context.Context, email string) (domainauth.UserRecord, error) {
	u, ok := f.users[email]
	if !ok {
		return domainauth.UserRecord{}, apperrors.NotFound("user not found")
	}
	return domainauth.UserRecord{User: u}, nil
}

type fakeLock struct {
	held    map[string]bool
	deleted []string
}

func (l *fakeLock) SetIfNotExists(_ context.Context, key string, _ []byte, _ time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLock) Delete(_ context.Context, key string) (bool, error) {
	l.deleted = append(l.deleted, key)
	delete(l.held, key)
	return true, nil
}

type fakeFlags struct{ flagged []string }

func (f *fakeFlags) RequirePasswordChange(_ context.Context, userID string) error {
	f.flagged = append(f.flagged, userID)
	return nil
}

func newProvisioner(t *testing.T, dir *fakeDirectory, roles core.RoleStore) (*adminProvisioner, *fakeLock, *fakeFlags) {
	t.Helper()
	lock := &fakeLock{held: map[string]bool{}}
	flags := &fakeFlags{}
	return &adminProvisioner{registrar: dir, users: dir, roles: roles, flags: flags, lock: lock}, lock, flags
}

func TestProvision_FirstRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	roles := core.NewMockRoleStore(ctrl)
	roles.EXPECT().InsertRole(gomock.Any(), "id-admin@shop.test", domainauth.RoleAdmin).Return(nil)
	roles.EXPECT().InsertRole(gomock.Any(), "id-admin@shop.test", domainauth.RoleClient).Return(nil)

	dir := &fakeDirectory{users: map[string]domainauth.User{}}
	p, lock, flags := newProvisioner(t, dir, roles)

	res, err := p.Provision(context.Background(), "admin@shop.test", "initial-pw")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleClient}, res.Granted)
	assert.Equal(t, []string{"id-admin@shop.test"}, flags.flagged)
	assert.Equal(t, []string{provisionLockKey}, lock.deleted)
}

func TestProvision_RerunFillsMissingRoles(t *testing.T) {
	ctrl := gomock.NewController(t)
	roles := core.NewMockRoleStore(ctrl)
	roles.EXPECT().InsertRole(gomock.Any(), "id-admin@shop.test", domainauth.RoleAdmin).
		Return(apperrors.Conflict("exists"))
	roles.EXPECT().InsertRole(gomock.Any(), "id-admin@shop.test", domainauth.RoleClient).Return(nil)

	dir := &fakeDirectory{users: map[string]domainauth.User{
		"admin@shop.test": {ID: "id-admin@shop.test", Email: "admin@shop.test"},
	}}
	p, _, flags := newProvisioner(t, dir, roles)

	res, err := p.Provision(context.Background(), "admin@shop.test", "initial-pw")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []domainauth.Role{domainauth.RoleClient}, res.Granted)
	assert.Empty(t, flags.flagged, "existing admins keep their password")
}

func TestProvision_LockHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	roles := core.NewMockRoleStore(ctrl)

	dir := &fakeDirectory{users: map[string]domainauth.User{}}
	p, lock, _ := newProvisioner(t, dir, roles)
	lock.held[provisionLockKey] = true

	_, err := p.Provision(context.Background(), "admin@shop.test", "pw")
	require.ErrorIs(t, err, errProvisionLocked)
	assert.Empty(t, dir.users)
	assert.Empty(t, lock.deleted)
}

func TestProvision_RoleStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	roles := core.NewMockRoleStore(ctrl)
	roles.EXPECT().InsertRole(gomock.Any(), gomock.Any(), domainauth.RoleAdmin).Return(errors.New("db down"))

	dir := &fakeDirectory{users: map[string]domainauth.User{}}
	p, lock, _ := newProvisioner(t, dir, roles)

	_, err := p.Provision(context.Background(), "admin@shop.test", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grant admin")
	assert.Equal(t, []string{provisionLockKey}, lock.deleted)
}

func TestProvision_RequiresPassword(t *testing.T) {
	p, _, _ := newProvisioner(t, &fakeDirectory{users: map[string]domainauth.User{}}, nil)
	_, err := p.Provision(context.Background(), "admin@shop.test", "")
	require.Error(t, err)
}

func TestParseSeedFile(t *testing.T) {
	got, err := parseSeedFile([]byte(`
assignments:
  - user_id: u-1
    roles: [admin, Client]
  - user_id: " u-2 "
    roles: [client]
`))
	require.NoError(t, err)
	assert.Equal(t, []domainauth.RoleAssignment{
		{UserID: "u-1", Role: domainauth.RoleAdmin},
		{UserID: "u-1", Role: domainauth.RoleClient},
		{UserID: "u-2", Role: domainauth.RoleClient},
	}, got)
}

func TestParseSeedFile_Errors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "assignments: [",
		"missing user": "assignments:\n  - roles: [admin]\n",
		"no roles":     "assignments:\n  - user_id: u-1\n",
		"unknown role": "assignments:\n  - user_id: u-1\n    roles: [owner]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseSeedFile([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestPrintAssignments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAssignments(&buf, nil))
	assert.Contains(t, buf.String(), "no role assignments")

	buf.Reset()
	require.NoError(t, printAssignments(&buf, []domainauth.RoleAssignment{
		{UserID: "u-1", Email: "a@shop.test", Role: domainauth.RoleAdmin, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{UserID: "u-2", Role: domainauth.RoleClient},
	}))
	out := buf.String()
	assert.Contains(t, out, "USER ID")
	assert.Contains(t, out, "a@shop.test")
	assert.Contains(t, out, "2024-05-01 10:00")
	assert.Contains(t, out, "u-2")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd(&app{logger: quietLogger()})
	for _, name := range []string{"migrate", "provision-admin", "grant-role", "revoke-role", "list-roles", "seed-roles", "dev-seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestGrantRole_RejectsUnknownRole(t *testing.T) {
	t.Setenv("DEV", "true")
	root := newRootCmd(&app{logger: quietLogger()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"grant-role", "u-1", "owner"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestSeedRoles_RequiresFile(t *testing.T) {
	t.Setenv("DEV", "true")
	root := newRootCmd(&app{logger: quietLogger()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"seed-roles"})

	require.Error(t, root.Execute())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDevSeed_RefusesOutsideDevMode(t *testing.T) {
	t.Setenv("DEV", "false")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("AUTH_TOKEN_SECRET", "test-secret")
	root := newRootCmd(&app{logger: quietLogger()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"dev-seed"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEV=true")
}
