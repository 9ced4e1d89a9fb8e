package service

import (
	"sync"
	"time"

	domainauth "github.com/target/storefront/internal/domain/auth"
)

// SessionState is the snapshot read by route guards and pages.
type SessionState struct {
	Session       *domainauth.Session `json:"session,omitempty"`
	User          *domainauth.User    `json:"user,omitempty"`
	IsAdmin       bool                `json:"is_admin"`
	IsClient      bool                `json:"is_client"`
	IsLoading     bool                `json:"is_loading"`
	LastRoleCheck time.Time           `json:"last_role_check,omitzero"`
}

// Roles returns the role pair held in the state.
func (s SessionState) Roles() domainauth.UserRoles {
	return domainauth.UserRoles{IsAdmin: s.IsAdmin, IsClient: s.IsClient}
}

// Authenticated reports whether a user is attached.
func (s SessionState) Authenticated() bool {
	return s.User != nil
}

// SessionStore is the single writer of a browser client's session state.
// Subscribers are called synchronously, in registration order, after each
// mutation and outside the lock.
type SessionStore struct {
	mu     sync.Mutex
	state  SessionState
	subs   map[int]func(SessionState)
	nextID int
}

// NewSessionStore returns a store in the loading state.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		state: SessionState{IsLoading: true},
		subs:  make(map[int]func(SessionState)),
	}
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Subscribe registers fn for state changes and returns a function removing it.
func (s *SessionStore) Subscribe(fn func(SessionState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetSession replaces the session. A session for a different user resets the role fields.
func (s *SessionStore) SetSession(sess *domainauth.Session) {
	s.mutate(func(st *SessionState) {
		if sess == nil {
			st.Session = nil
			return
		}
		cp := *sess
		if st.User != nil && st.User.ID != cp.User.ID {
			st.IsAdmin, st.IsClient, st.LastRoleCheck = false, false, time.Time{}
		}
		st.Session = &cp
	})
}

// SetUser replaces the user. A different user resets the role fields.
func (s *SessionStore) SetUser(u *domainauth.User) {
	s.mutate(func(st *SessionState) {
		if u == nil {
			st.User = nil
			return
		}
		cp := *u
		if st.User != nil && st.User.ID != cp.ID {
			st.IsAdmin, st.IsClient, st.LastRoleCheck = false, false, time.Time{}
		}
		st.User = &cp
	})
}

// SetLoading sets the loading flag.
func (s *SessionStore) SetLoading(loading bool) {
	s.mutate(func(st *SessionState) { st.IsLoading = loading })
}

// ApplyRoles commits a freshly resolved role result for userID exactly as
// resolved. Both flags are written together with admin implying client. A
// result for a user other than the current one is dropped. It reports
// whether the result was applied.
func (s *SessionStore) ApplyRoles(userID string, r domainauth.UserRoles, checkedAt time.Time) bool {
	return s.applyRoles(userID, r, checkedAt, false)
}

// ApplyLateRoles commits a timeout fallback or a straggling result. It may
// raise IsAdmin but never lowers it for the same user.
func (s *SessionStore) ApplyLateRoles(userID string, r domainauth.UserRoles, checkedAt time.Time) bool {
	return s.applyRoles(userID, r, checkedAt, true)
}

func (s *SessionStore) applyRoles(userID string, r domainauth.UserRoles, checkedAt time.Time, keepAdmin bool) bool {
	applied := false
	s.mutate(func(st *SessionState) {
		if st.User == nil || st.User.ID != userID {
			return
		}
		r = r.Normalize()
		if keepAdmin && st.IsAdmin && !r.IsAdmin {
			r.IsAdmin, r.IsClient = true, true
		}
		st.IsAdmin, st.IsClient = r.IsAdmin, r.IsClient
		if checkedAt.After(st.LastRoleCheck) {
			st.LastRoleCheck = checkedAt
		}
		applied = true
	})
	return applied
}

// Clear drops session, user and roles and leaves the store settled.
func (s *SessionStore) Clear() {
	s.mutate(func(st *SessionState) {
		*st = SessionState{}
	})
}

func (s *SessionStore) mutate(fn func(*SessionState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.copyLocked()
	subs := make([]func(SessionState), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if f, ok := s.subs[id]; ok {
			subs = append(subs, f)
		}
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *SessionStore) copyLocked() SessionState {
	out := s.state
	if s.state.Session != nil {
		cp := *s.state.Session
		out.Session = &cp
	}
	if s.state.User != nil {
		cp := *s.state.User
		out.User = &cp
	}
	return out
}
