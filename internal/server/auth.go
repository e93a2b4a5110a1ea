package server

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dekarrin/quosi/internal/server/store"
)

// devSigningSalt is mixed into every JWT signing key alongside the user's
// password hash and last-logout time, the same role the teacher's
// fakeTestKey plays: a fixed secret that should be replaced by a real
// deployment secret (Config.SigningSalt) before exposing the server.
var devSigningSalt = []byte("quosi-trace-server")

// ErrBadCredentials is returned by Login when the username/password pair
// doesn't match a stored account.
var ErrBadCredentials = fmt.Errorf("incorrect username or password")

// Login verifies username/password against the user store and, on
// success, returns a signed JWT whose subject is the user's id.
func (s *Server) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if err == store.ErrNotFound {
			return "", ErrBadCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}

	return s.signToken(u)
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Server) Register(ctx context.Context, username, password string) (store.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing password: %w", err)
	}
	return s.store.Users().Create(ctx, store.User{Username: username, PasswordHash: string(hash)})
}

func (s *Server) signToken(u store.User) (string, error) {
	claims := jwt.MapClaims{
		"iss": "quosi-trace-server",
		"sub": u.ID.String(),
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return tok.SignedString(s.signingKey(u))
}

// signingKey derives a per-user signing key from the account's password
// hash and last-logout time, so Logout can invalidate every outstanding
// token just by bumping LastLogoutTime — no revocation list needed.
func (s *Server) signingKey(u store.User) []byte {
	key := append([]byte{}, s.signingSalt...)
	key = append(key, []byte(u.PasswordHash)...)
	key = append(key, []byte(fmt.Sprintf("%d", u.LastLogoutTime.Unix()))...)
	return key
}

// verifyToken validates tok and returns the user it authenticates.
func (s *Server) verifyToken(ctx context.Context, tok string) (store.User, error) {
	var user store.User

	_, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		subj, err := t.Claims.GetSubject()
		if err != nil {
			return nil, fmt.Errorf("cannot get subject: %w", err)
		}
		id, err := uuid.Parse(subj)
		if err != nil {
			return nil, fmt.Errorf("cannot parse subject: %w", err)
		}
		user, err = s.store.Users().GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("subject does not exist")
		}
		return s.signingKey(user), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithIssuer("quosi-trace-server"), jwt.WithLeeway(time.Minute))

	if err != nil {
		return store.User{}, err
	}
	return user, nil
}

// Logout invalidates every token issued to u by bumping LastLogoutTime,
// which changes the signing key every future verifyToken call derives.
func (s *Server) Logout(ctx context.Context, u store.User) error {
	now := time.Now()
	if now.Unix() <= u.LastLogoutTime.Unix() {
		// signingKey folds in whole seconds, so move to a later second.
		now = u.LastLogoutTime.Add(time.Second)
	}
	u.LastLogoutTime = now
	_, err := s.store.Users().Update(ctx, u)
	return err
}
