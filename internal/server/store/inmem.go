package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInMemory creates a Store backed by plain Go maps, for tests and
// single-process demo deployments that don't need durability.
func NewInMemory() Store {
	return &inmemStore{
		users:    &inmemUsers{byID: make(map[uuid.UUID]User), byName: make(map[string]uuid.UUID)},
		sessions: &inmemSessions{byID: make(map[uuid.UUID]Session)},
	}
}

type inmemStore struct {
	users    *inmemUsers
	sessions *inmemSessions
}

func (s *inmemStore) Users() UserRepository       { return s.users }
func (s *inmemStore) Sessions() SessionRepository { return s.sessions }
func (s *inmemStore) Close() error                { return nil }

type inmemUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]User
	byName map[string]uuid.UUID
}

func (r *inmemUsers) Create(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[u.Username]; ok {
		return User{}, ErrConflict
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return User{}, err
	}
	u.ID = id
	u.Created = time.Now()
	u.LastLogoutTime = time.Now()

	r.byID[id] = u
	r.byName[u.Username] = id
	return u, nil
}

func (r *inmemUsers) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *inmemUsers) GetByUsername(ctx context.Context, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *inmemUsers) Update(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; !ok {
		return User{}, ErrNotFound
	}
	r.byID[u.ID] = u
	r.byName[u.Username] = u.ID
	return u, nil
}

func (r *inmemUsers) Close() error { return nil }

type inmemSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]Session
}

func (r *inmemSessions) Create(ctx context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := uuid.NewRandom()
	if err != nil {
		return Session{}, err
	}
	s.ID = id
	s.Created = time.Now()
	r.byID[id] = s
	return s, nil
}

func (r *inmemSessions) GetByID(ctx context.Context, id uuid.UUID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *inmemSessions) Update(ctx context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; !ok {
		return Session{}, ErrNotFound
	}
	r.byID[s.ID] = s
	return s, nil
}

func (r *inmemSessions) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *inmemSessions) Close() error { return nil }
