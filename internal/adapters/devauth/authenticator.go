// Package devauth provides a config-driven, in-memory Authenticator for local
// development (AUTH_MODE=mock).
package devauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

// userNamespace derives stable user ids from emails so role rows survive restarts.
var userNamespace = uuid.MustParse("5b0c3c8e-7f55-4d55-9a43-3f0d1c9e2a10")

// User is one configured development account.
type User struct {
	Email    string
	Password string
	Name     string
}

// Config lists the accounts available at start-up.
type Config struct {
	Users []User
}

// ParseUsers reads "email:password[:name]" entries separated by commas.
func ParseUsers(raw string) ([]User, error) {
	var out []User
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("dev auth: malformed user entry %q", entry)
		}
		u := User{Email: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			u.Name = parts[2]
		}
		out = append(out, u)
	}
	return out, nil
}

type account struct {
	user     domainauth.User
	password string
}

// Authenticator is an in-memory user directory.
type Authenticator struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

var _ ports.Authenticator = (*Authenticator)(nil)

// New builds an Authenticator seeded from cfg.
func New(cfg Config) (*Authenticator, error) {
	a := &Authenticator{accounts: make(map[string]*account, len(cfg.Users))}
	for _, u := range cfg.Users {
		var meta map[string]string
		if u.Name != "" {
			meta = map[string]string{"name": u.Name}
		}
		if _, err := a.Register(context.Background(), ports.SignUpInput{
			Email: u.Email, Password: u.Password, Metadata: meta,
		}); err != nil {
			return nil, fmt.Errorf("dev auth: seed %s: %w", u.Email, err)
		}
	}
	return a, nil
}

// UserID returns the id assigned to email.
func UserID(email string) string {
	return uuid.NewSHA1(userNamespace, []byte(domainauth.NormalizeEmail(email))).String()
}

// Authenticate checks the in-memory password.
func (a *Authenticator) Authenticate(_ context.Context, in ports.Credentials) (domainauth.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.accounts[domainauth.NormalizeEmail(in.Email)]
	if !ok || acct.password != in.Password {
		return domainauth.User{}, apperrors.InvalidCredentials("Invalid login credentials")
	}
	return acct.user, nil
}

// Register adds an account. A taken email is a Conflict.
func (a *Authenticator) Register(_ context.Context, in ports.SignUpInput) (domainauth.User, error) {
	key := domainauth.NormalizeEmail(in.Email)
	if key == "" {
		return domainauth.User{}, apperrors.ValidationField("email", "Email is required")
	}
	if in.Password == "" {
		return domainauth.User{}, apperrors.ValidationField("password", "Password is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.accounts[key]; exists {
		return domainauth.User{}, apperrors.Conflict("User already registered")
	}
	u := domainauth.User{ID: UserID(key), Email: key, CreatedAt: time.Now().UTC(), Metadata: in.Metadata}
	a.accounts[key] = &account{user: u, password: in.Password}
	return u, nil
}

// UpdatePassword replaces the password for userID.
func (a *Authenticator) UpdatePassword(_ context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return apperrors.ValidationField("password", "Password is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acct := range a.accounts {
		if acct.user.ID == userID {
			acct.password = newPassword
			return nil
		}
	}
	return apperrors.NotFound("User not found")
}

// ErrNoUsers is returned by callers that require at least one configured account.
var ErrNoUsers = errors.New("dev auth: no users configured")
