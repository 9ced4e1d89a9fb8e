package localauth

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
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *core.MockUserRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := core.NewMockUserRepository(ctrl)
	return New(Options{Users: users, Cost: bcrypt.MinCost}), users
}

func record(t *testing.T, id, email, password string) domainauth.UserRecord {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return domainauth.UserRecord{
		User:         domainauth.User{ID: id, Email: email},
		PasswordHash: string(hash),
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	rec := record(t, "u-1", "shopper@shop.test", "hunter22")

	tests := []struct {
		name      string
		password  string
		lookupErr error
		check     func(t *testing.T, u domainauth.User, err error)
	}{
		{
			name:     "match",
			password: "hunter22",
			check: func(t *testing.T, u domainauth.User, err error) {
				require.NoError(t, err)
				assert.Equal(t, "u-1", u.ID)
			},
		},
		{
			name:     "wrong password",
			password: "hunter23",
			check: func(t *testing.T, _ domainauth.User, err error) {
				assert.True(t, apperrors.IsInvalidCredentials(err))
				assert.Equal(t, InvalidCredentialsMessage, apperrors.UserMessage(err, ""))
			},
		},
		{
			name:      "unknown email",
			password:  "hunter22",
			lookupErr: apperrors.NotFound("User not found"),
			check: func(t *testing.T, _ domainauth.User, err error) {
				assert.True(t, apperrors.IsInvalidCredentials(err))
			},
		},
		{
			name:      "directory down",
			password:  "hunter22",
			lookupErr: errors.New("connection refused"),
			check: func(t *testing.T, _ domainauth.User, err error) {
				assert.Equal(t, apperrors.ErrCodeNetwork, apperrors.GetCode(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, users := newTestAuthenticator(t)
			if tt.lookupErr != nil {
				users.EXPECT().GetByEmail(gomock.Any(), "shopper@shop.test").Return(domainauth.UserRecord{}, tt.lookupErr)
			} else {
				users.EXPECT().GetByEmail(gomock.Any(), "shopper@shop.test").Return(rec, nil)
			}
			u, err := a.Authenticate(ctx, ports.Credentials{Email: "shopper@shop.test", Password: tt.password})
			tt.check(t, u, err)
		})
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	a, users := newTestAuthenticator(t)
	ctx := context.Background()

	users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req core.CreateUserRequest) (domainauth.UserRecord, error) {
			assert.Equal(t, "new@shop.test", req.Email)
			assert.Equal(t, "Ada", req.Metadata["name"])
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(req.PasswordHash), []byte("secret12")))
			return domainauth.UserRecord{User: domainauth.User{ID: "u-2", Email: req.Email}}, nil
		})

	u, err := a.Register(ctx, ports.SignUpInput{
		Email:    "new@shop.test",
		Password: "secret12",
		Metadata: map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u-2", u.ID)
}

func TestRegister_PropagatesConflict(t *testing.T) {
	a, users := newTestAuthenticator(t)
	users.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(domainauth.UserRecord{}, apperrors.Conflict("User already registered"))

	_, err := a.Register(context.Background(), ports.SignUpInput{Email: "dup@shop.test", Password: "secret12"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestRegister_RejectsEmptyPassword(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	_, err := a.Register(context.Background(), ports.SignUpInput{Email: "x@shop.test"})
	assert.Equal(t, "password", apperrors.GetField(err))
}

func TestUpdatePassword(t *testing.T) {
	a, users := newTestAuthenticator(t)
	users.EXPECT().UpdatePasswordHash(gomock.Any(), "u-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, hash string) error {
			return bcrypt.CompareHashAndPassword([]byte(hash), []byte("rotated1"))
		})
	require.NoError(t, a.UpdatePassword(context.Background(), "u-1", "rotated1"))
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("pa55word")
	require.NoError(t, err)
	assert.NoError(t, Verify("pa55word", hash))
	assert.True(t, apperrors.IsInvalidCredentials(Verify("other", hash)))
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(Verify("x", "not-a-hash")))

	_, err = Hash(string(make([]byte, 80)))
	assert.True(t, apperrors.IsValidation(err))
}

func TestNew_PanicsWithoutUsers(t *testing.T) {
	assert.Panics(t, func() { New(Options{}) })
}
