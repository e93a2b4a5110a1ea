package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// storeFactories lets every behavioral test below run against both backends,
// matching how the SPEC_FULL.md server is expected to work identically
// regardless of which --db driver an operator chooses.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"inmem": func() Store { return NewInMemory() },
		"sqlite": func() Store {
			st, err := NewSQLite("file::memory:?cache=shared")
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return st
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, st Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := factory()
			defer st.Close()
			fn(t, st)
		})
	}
}

func Test_Store_Users_createAndFetch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		assert := assert.New(t)
		ctx := context.Background()

		created, err := st.Users().Create(ctx, User{Username: "alice", PasswordHash: "hash1"})
		assert.NoError(err)
		assert.NotEqual(uuid.Nil, created.ID)
		assert.Equal("alice", created.Username)
		assert.False(created.Created.IsZero())

		byID, err := st.Users().GetByID(ctx, created.ID)
		assert.NoError(err)
		assert.Equal(created.Username, byID.Username)

		byName, err := st.Users().GetByUsername(ctx, "alice")
		assert.NoError(err)
		assert.Equal(created.ID, byName.ID)
	})
}

func Test_Store_Users_duplicateUsernameConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.Users().Create(ctx, User{Username: "bob", PasswordHash: "h"})
		assert.NoError(t, err)

		_, err = st.Users().Create(ctx, User{Username: "bob", PasswordHash: "h2"})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func Test_Store_Users_getMissing_isNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		randomID, _ := uuid.NewRandom()
		_, err := st.Users().GetByID(ctx, randomID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = st.Users().GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func Test_Store_Users_update(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		assert := assert.New(t)
		ctx := context.Background()

		u, err := st.Users().Create(ctx, User{Username: "carol", PasswordHash: "h"})
		assert.NoError(err)

		bumped := u.LastLogoutTime.Add(1)
		u.LastLogoutTime = bumped
		updated, err := st.Users().Update(ctx, u)
		assert.NoError(err)
		assert.Equal(bumped.Unix(), updated.LastLogoutTime.Unix())

		refetched, err := st.Users().GetByID(ctx, u.ID)
		assert.NoError(err)
		assert.Equal(bumped.Unix(), refetched.LastLogoutTime.Unix())
	})
}

func Test_Store_Users_updateMissing_isNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		randomID, _ := uuid.NewRandom()
		_, err := st.Users().Update(ctx, User{ID: randomID, Username: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func Test_Store_Sessions_createAndFetch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		assert := assert.New(t)
		ctx := context.Background()

		u, err := st.Users().Create(ctx, User{Username: "dave", PasswordHash: "h"})
		assert.NoError(err)

		s, err := st.Sessions().Create(ctx, Session{
			UserID:     u.ID,
			Program:    []byte{1, 2, 3},
			VMState:    []byte{4, 5, 6},
			Vars:       []byte{7, 8},
			LastUpCall: 2,
		})
		assert.NoError(err)
		assert.NotEqual(uuid.Nil, s.ID)

		got, err := st.Sessions().GetByID(ctx, s.ID)
		assert.NoError(err)
		assert.Equal(u.ID, got.UserID)
		assert.Equal([]byte{1, 2, 3}, got.Program)
		assert.Equal([]byte{4, 5, 6}, got.VMState)
		assert.Equal([]byte{7, 8}, got.Vars)
		assert.Equal(2, got.LastUpCall)
	})
}

func Test_Store_Sessions_update(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		assert := assert.New(t)
		ctx := context.Background()

		u, err := st.Users().Create(ctx, User{Username: "erin", PasswordHash: "h"})
		assert.NoError(err)

		s, err := st.Sessions().Create(ctx, Session{UserID: u.ID, Program: []byte{9}, LastUpCall: 1})
		assert.NoError(err)

		s.VMState = []byte{1, 1, 1}
		s.Vars = []byte{2, 2}
		s.LastUpCall = 3
		updated, err := st.Sessions().Update(ctx, s)
		assert.NoError(err)
		assert.Equal([]byte{1, 1, 1}, updated.VMState)
		assert.Equal(3, updated.LastUpCall)

		refetched, err := st.Sessions().GetByID(ctx, s.ID)
		assert.NoError(err)
		assert.Equal([]byte{1, 1, 1}, refetched.VMState)
		assert.Equal([]byte{9}, refetched.Program, "Update must not disturb the session's original program bytes")
	})
}

func Test_Store_Sessions_delete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		assert := assert.New(t)
		ctx := context.Background()

		u, err := st.Users().Create(ctx, User{Username: "frank", PasswordHash: "h"})
		assert.NoError(err)
		s, err := st.Sessions().Create(ctx, Session{UserID: u.ID})
		assert.NoError(err)

		assert.NoError(st.Sessions().Delete(ctx, s.ID))

		_, err = st.Sessions().GetByID(ctx, s.ID)
		assert.ErrorIs(err, ErrNotFound)

		assert.ErrorIs(st.Sessions().Delete(ctx, s.ID), ErrNotFound, "deleting an already-deleted session must report not-found")
	})
}
