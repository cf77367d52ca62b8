package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"evcal/internal/model"
)

// Session is one logged-in browser.
type Session struct {
	ID        string
	User      model.User
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Sessions is an in-memory session table. Entries expire after a fixed TTL
// from login; Prune drops the expired ones.
type Sessions struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]Session

	now func() time.Time
}

// NewSessions returns an empty table with the given lifetime.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{
		ttl:   ttl,
		items: make(map[string]Session),
		now:   time.Now,
	}
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Create starts a session for u.
func (s *Sessions) Create(u model.User) Session {
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		User:      u,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.items[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a live session. Expired sessions are removed on access.
func (s *Sessions) Get(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.items[id]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.items, id)
		return Session{}, false
	}
	return sess, true
}

// Delete ends a session. Unknown ids are ignored.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Prune removes expired sessions and returns how many were dropped.
func (s *Sessions) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.items {
		if !now.Before(sess.ExpiresAt) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type ctxKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(model.User)
	return u, ok
}
