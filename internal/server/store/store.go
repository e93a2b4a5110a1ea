// Package store provides data access objects for the trace-session server:
// accounts, and the suspended VM snapshots that back resumable sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup by id or username matches
	// nothing in the store.
	ErrNotFound = errors.New("the requested resource was not found")

	// ErrConflict is returned when a Create would violate a uniqueness
	// constraint (a username already registered).
	ErrConflict = errors.New("a uniqueness constraint was violated")
)

// User is a server account: a login identity that owns trace sessions.
type User struct {
	ID       uuid.UUID
	Username string

	// PasswordHash is a bcrypt hash, never a plaintext password.
	PasswordHash string

	Created time.Time

	// LastLogoutTime is folded into the JWT signing key (see
	// internal/server's auth.go), so bumping it invalidates every token
	// issued before it without needing a revocation list.
	LastLogoutTime time.Time
}

// Session is one suspended trace session: which program it's running,
// whose it is, and the VM snapshot to resume from.
type Session struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Created time.Time

	// Program is the compiled .bsi payload (binfmt.CompiledFile.Marshal's
	// output) the session is running.
	Program []byte

	// VMState is a vm.VM.Export snapshot: the suspended machine's
	// registers at the moment of its last up-call.
	VMState []byte

	// Vars is the session's variable store, encoded by
	// internal/server.encodeVars.
	Vars []byte

	// LastUpCall records what the VM was waiting on when it suspended, so
	// a resume request can be validated (e.g. requiring a choice index
	// when the session is paused on a Pick).
	LastUpCall int
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Update(ctx context.Context, u User) (User, error)
	Close() error
}

// SessionRepository persists trace sessions.
type SessionRepository interface {
	Create(ctx context.Context, s Session) (Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (Session, error)
	Update(ctx context.Context, s Session) (Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// Store bundles the repositories the server needs.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Close() error
}
