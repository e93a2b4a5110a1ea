package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/quosi/internal/server/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{
		Store:       store.NewInMemory(),
		UnauthDelay: time.Millisecond,
		TokenTTL:    time.Hour,
		SigningSalt: []byte("test-salt"),
	})
}

func Test_Register_Login_roundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestServer(t)

	u, err := s.Register(ctx, "alice", "hunter2")
	assert.NoError(err)
	assert.Equal("alice", u.Username)
	assert.NotEmpty(u.PasswordHash)
	assert.NotEqual("hunter2", u.PasswordHash, "password must never be stored in plaintext")

	tok, err := s.Login(ctx, "alice", "hunter2")
	assert.NoError(err)
	assert.NotEmpty(tok)

	verified, err := s.verifyToken(ctx, tok)
	assert.NoError(err)
	assert.Equal(u.ID, verified.ID)
}

func Test_Login_wrongPassword_isBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Register(ctx, "bob", "correct-password")
	assert.NoError(t, err)

	_, err = s.Login(ctx, "bob", "wrong-password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func Test_Login_unknownUsername_isBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Login(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func Test_Logout_invalidatesPreviouslyIssuedTokens(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Register(ctx, "carol", "pw12345")
	assert.NoError(err)

	tok, err := s.Login(ctx, "carol", "pw12345")
	assert.NoError(err)

	u, err := s.verifyToken(ctx, tok)
	assert.NoError(err)

	assert.NoError(s.Logout(ctx, u))

	_, err = s.verifyToken(ctx, tok)
	assert.Error(err, "a token signed before logout must not verify afterward")
}

func Test_verifyToken_rejectsGarbage(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.verifyToken(ctx, "not.a.jwt")
	assert.Error(t, err)
}

func Test_signingKey_differsByUserAndLogoutTime(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	u1 := store.User{PasswordHash: "hashA", LastLogoutTime: time.Unix(100, 0)}
	u2 := store.User{PasswordHash: "hashB", LastLogoutTime: time.Unix(100, 0)}
	assert.NotEqual(s.signingKey(u1), s.signingKey(u2))

	u1Later := u1
	u1Later.LastLogoutTime = time.Unix(200, 0)
	assert.NotEqual(s.signingKey(u1), s.signingKey(u1Later), "bumping LastLogoutTime must change the derived key")
}

func Test_Register_duplicateUsername_isConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Register(ctx, "dave", "pw")
	assert.NoError(t, err)

	_, err = s.Register(ctx, "dave", "pw2")
	assert.ErrorIs(t, err, store.ErrConflict)
}
