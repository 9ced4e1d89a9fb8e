package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/target/storefront/internal/core"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
)

// CountingRoleStore is an in-memory RoleStore that counts calls and can be
// made slow or failing.
type CountingRoleStore struct {
	mu    sync.Mutex
	rows  map[string]map[domainauth.Role]time.Time
	calls map[string]int

	// Block, when non-nil, holds every RolesForUser call until it is closed.
	Block chan struct{}
	// QueryErrs are returned by successive RolesForUser calls before normal behaviour resumes.
	QueryErrs []error
	AssignErr error
	InsertErr error
}

// NewCountingRoleStore returns an empty store.
func NewCountingRoleStore() *CountingRoleStore {
	return &CountingRoleStore{
		rows:  make(map[string]map[domainauth.Role]time.Time),
		calls: make(map[string]int),
	}
}

// Seed writes rows without counting a call.
func (s *CountingRoleStore) Seed(userID string, roles ...domainauth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		s.putLocked(userID, r)
	}
}

// Calls returns how many times op was invoked.
func (s *CountingRoleStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Rows returns the stored roles for userID, sorted.
func (s *CountingRoleStore) Rows(userID string) []domainauth.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesLocked(userID)
}

func (s *CountingRoleStore) RolesForUser(ctx context.Context, userID string) ([]domainauth.Role, error) {
	s.mu.Lock()
	s.calls["query"]++
	block := s.Block
	var err error
	if len(s.QueryErrs) > 0 {
		err = s.QueryErrs[0]
		s.QueryErrs = s.QueryErrs[1:]
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesLocked(userID), nil
}

func (s *CountingRoleStore) InsertRole(_ context.Context, userID string, role domainauth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["insert"]++
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, ok := s.rows[userID][role]; ok {
		return apperrors.Conflict("Role already assigned")
	}
	s.putLocked(userID, role)
	return nil
}

func (s *CountingRoleStore) AssignClientRole(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["assign"]++
	if s.AssignErr != nil {
		return s.AssignErr
	}
	if _, ok := s.rows[userID][domainauth.RoleClient]; !ok {
		s.putLocked(userID, domainauth.RoleClient)
	}
	return nil
}

func (s *CountingRoleStore) RevokeRole(_ context.Context, userID string, role domainauth.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["revoke"]++
	if _, ok := s.rows[userID][role]; !ok {
		return false, nil
	}
	delete(s.rows[userID], role)
	return true, nil
}

func (s *CountingRoleStore) ListAssignments(_ context.Context, opts core.ListAssignmentsOptions) ([]domainauth.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["list"]++
	var out []domainauth.RoleAssignment
	for uid, roles := range s.rows {
		if opts.UserID != "" && uid != opts.UserID {
			continue
		}
		for r, at := range roles {
			out = append(out, domainauth.RoleAssignment{UserID: uid, Role: r, CreatedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Role < out[j].Role
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *CountingRoleStore) putLocked(userID string, r domainauth.Role) {
	if s.rows[userID] == nil {
		s.rows[userID] = make(map[domainauth.Role]time.Time)
	}
	s.rows[userID][r] = time.Now()
}

func (s *CountingRoleStore) rolesLocked(userID string) []domainauth.Role {
	out := make([]domainauth.Role, 0, len(s.rows[userID]))
	for r := range s.rows[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
