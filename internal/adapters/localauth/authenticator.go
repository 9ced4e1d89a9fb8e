// Package localauth authenticates users stored in the storefront's own
// Postgres directory with bcrypt password hashes.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// InvalidCredentialsMessage is shown verbatim on the sign-in form.
const InvalidCredentialsMessage = "Invalid login credentials"

// Options configures an Authenticator.
type Options struct {
	Users  core.UserRepository // required
	Cost   int                 // bcrypt cost; zero means bcrypt.DefaultCost
	Logger *slog.Logger
}

// Authenticator implements ports.Authenticator.
type Authenticator struct {
	users  core.UserRepository
	cost   int
	logger *slog.Logger

	// compared against when the email is unknown so both paths pay for bcrypt
	dummyHash []byte
}

var _ ports.Authenticator = (*Authenticator)(nil)

// New constructs an Authenticator. It panics if Users is nil.
func New(opts Options) *Authenticator {
	if opts.Users == nil {
		panic("localauth.New: Users is required")
	}
	cost := opts.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "localauth")
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("localauth.New: %v", err))
	}
	return &Authenticator{users: opts.Users, cost: cost, logger: logger, dummyHash: dummy}
}

// Authenticate checks in against the stored hash.
func (a *Authenticator) Authenticate(ctx context.Context, in ports.Credentials) (domainauth.User, error) {
	rec, err := a.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(in.Password))
			return domainauth.User{}, apperrors.InvalidCredentials(InvalidCredentialsMessage)
		}
		return domainauth.User{}, apperrors.Network(err, "Could not reach the user directory.")
	}

	if err = Verify(in.Password, rec.PasswordHash); err != nil {
		if apperrors.IsInvalidCredentials(err) {
			a.logger.InfoContext(ctx, "password mismatch", "user_id", rec.ID)
		}
		return domainauth.User{}, err
	}
	return rec.User, nil
}

// Register hashes the password and creates the user. A taken email is a Conflict.
func (a *Authenticator) Register(ctx context.Context, in ports.SignUpInput) (domainauth.User, error) {
	hash, err := a.hash(in.Password)
	if err != nil {
		return domainauth.User{}, err
	}
	rec, err := a.users.Create(ctx, core.CreateUserRequest{
		Email:        in.Email,
		PasswordHash: hash,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return domainauth.User{}, err
	}
	a.logger.InfoContext(ctx, "user registered", "user_id", rec.ID)
	return rec.User, nil
}

// UpdatePassword replaces the hash for userID.
func (a *Authenticator) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := a.hash(newPassword)
	if err != nil {
		return err
	}
	return a.users.UpdatePasswordHash(ctx, userID, hash)
}

func (a *Authenticator) hash(password string) (string, error) {
	if password == "" {
		return "", apperrors.ValidationField("password", "Password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperrors.ValidationField("password", "Password is too long")
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "could not hash password")
	}
	return string(hashed), nil
}

// Hash returns a bcrypt hash of password at the default cost.
func Hash(password string) (string, error) {
	a := Authenticator{cost: bcrypt.DefaultCost}
	return a.hash(password)
}

// Verify compares password against hash. A mismatch is an InvalidCredentials error.
func Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperrors.InvalidCredentials(InvalidCredentialsMessage)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "could not verify password")
	}
	return nil
}
