package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a server-side login session.
type Session struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) IsExpired() bool {
	return !nowFunc().Before(s.ExpiresAt)
}

// SessionStore persists sessions.
// Get returns ErrSessionNotFound or ErrSessionExpired when the session cannot be used.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// NewSession returns a session for the identity with a random 256-bit ID.
func NewSession(id Identity, ttl time.Duration) (*Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "generating session ID")
	}
	now := nowFunc().UTC()
	return &Session{
		ID:        hex.EncodeToString(buf),
		Identity:  id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ SessionStore = (*memorySessionStore)(nil)

// NewMemorySessionStore returns a process-local SessionStore.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: make(map[string]Session)}
}

func (ms *memorySessionStore) Create(_ context.Context, s *Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sessions[s.ID] = *s
	return nil
}

func (ms *memorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	ms.mu.RLock()
	s, ok := ms.sessions[id]
	ms.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.IsExpired() {
		ms.mu.Lock()
		delete(ms.sessions, id)
		ms.mu.Unlock()
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (ms *memorySessionStore) Delete(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, id)
	return nil
}

// SessionResolver resolves identities from the session cookie.
type SessionResolver struct {
	store  SessionStore
	cookie string
}

var _ IdentityResolver = (*SessionResolver)(nil)

func NewSessionResolver(store SessionStore, cookie string) *SessionResolver {
	return &SessionResolver{store: store, cookie: cookie}
}

func (sr *SessionResolver) Resolve(r *http.Request) (*Identity, error) {
	c, err := r.Cookie(sr.cookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	s, err := sr.store.Get(r.Context(), c.Value)
	if err != nil {
		if err == ErrSessionNotFound || err == ErrSessionExpired {
			return nil, errors.Wrap(core.ErrUnauthorized, err.Error())
		}
		return nil, errors.Wrap(err, "getting session")
	}
	id := s.Identity
	return &id, nil
}
