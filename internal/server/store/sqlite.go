package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
)

// NewSQLite opens (creating if necessary) a sqlite-backed Store at path.
func NewSQLite(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapDBError(err)
	}

	u := &sqliteUsers{db: db}
	if err := u.init(); err != nil {
		return nil, err
	}
	s := &sqliteSessions{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}

	return &sqliteStore{db: db, users: u, sessions: s}, nil
}

type sqliteStore struct {
	db       *sql.DB
	users    *sqliteUsers
	sessions *sqliteSessions
}

func (s *sqliteStore) Users() UserRepository       { return s.users }
func (s *sqliteStore) Sessions() SessionRepository { return s.sessions }
func (s *sqliteStore) Close() error                { return s.db.Close() }

type sqliteUsers struct {
	db *sql.DB
}

func (r *sqliteUsers) init() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created INTEGER NOT NULL,
		last_logout INTEGER NOT NULL
	);`)
	return wrapDBError(err)
}

func (r *sqliteUsers) Create(ctx context.Context, u User) (User, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return User{}, fmt.Errorf("could not generate ID: %w", err)
	}
	now := time.Now()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created, last_logout) VALUES (?, ?, ?, ?, ?)`,
		id.String(), u.Username, u.PasswordHash, now.Unix(), now.Unix())
	if err != nil {
		return User{}, wrapDBError(err)
	}
	return r.GetByID(ctx, id)
}

func (r *sqliteUsers) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created, last_logout FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func (r *sqliteUsers) GetByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created, last_logout FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *sqliteUsers) Update(ctx context.Context, u User) (User, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, last_logout = ? WHERE id = ?`,
		u.Username, u.PasswordHash, u.LastLogoutTime.Unix(), u.ID.String())
	if err != nil {
		return User{}, wrapDBError(err)
	}
	return r.GetByID(ctx, u.ID)
}

func (r *sqliteUsers) Close() error { return nil }

func scanUser(row *sql.Row) (User, error) {
	var idStr string
	var u User
	var created, lastLogout int64
	if err := row.Scan(&idStr, &u.Username, &u.PasswordHash, &created, &lastLogout); err != nil {
		return User{}, wrapDBError(err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return User{}, fmt.Errorf("decoding stored id: %w", err)
	}
	u.ID = id
	u.Created = time.Unix(created, 0)
	u.LastLogoutTime = time.Unix(lastLogout, 0)
	return u, nil
}

type sqliteSessions struct {
	db *sql.DB
}

func (r *sqliteSessions) init() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created INTEGER NOT NULL,
		program TEXT NOT NULL,
		vm_state TEXT NOT NULL,
		vars TEXT NOT NULL,
		last_upcall INTEGER NOT NULL
	);`)
	return wrapDBError(err)
}

func (r *sqliteSessions) Create(ctx context.Context, s Session) (Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Session{}, fmt.Errorf("could not generate ID: %w", err)
	}
	now := time.Now()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created, program, vm_state, vars, last_upcall) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), s.UserID.String(), now.Unix(),
		base64.StdEncoding.EncodeToString(s.Program),
		base64.StdEncoding.EncodeToString(s.VMState),
		base64.StdEncoding.EncodeToString(s.Vars),
		s.LastUpCall)
	if err != nil {
		return Session{}, wrapDBError(err)
	}
	return r.GetByID(ctx, id)
}

func (r *sqliteSessions) GetByID(ctx context.Context, id uuid.UUID) (Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created, program, vm_state, vars, last_upcall FROM sessions WHERE id = ?`, id.String())
	return scanSession(row)
}

func (r *sqliteSessions) Update(ctx context.Context, s Session) (Session, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET vm_state = ?, vars = ?, last_upcall = ? WHERE id = ?`,
		base64.StdEncoding.EncodeToString(s.VMState),
		base64.StdEncoding.EncodeToString(s.Vars),
		s.LastUpCall, s.ID.String())
	if err != nil {
		return Session{}, wrapDBError(err)
	}
	return r.GetByID(ctx, s.ID)
}

func (r *sqliteSessions) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return wrapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteSessions) Close() error { return nil }

func scanSession(row *sql.Row) (Session, error) {
	var idStr, userIDStr, program, vmState, vars string
	var created int64
	var s Session
	if err := row.Scan(&idStr, &userIDStr, &created, &program, &vmState, &vars, &s.LastUpCall); err != nil {
		return Session{}, wrapDBError(err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Session{}, fmt.Errorf("decoding stored session id: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return Session{}, fmt.Errorf("decoding stored user id: %w", err)
	}
	s.ID = id
	s.UserID = userID
	s.Created = time.Unix(created, 0)

	if s.Program, err = base64.StdEncoding.DecodeString(program); err != nil {
		return Session{}, fmt.Errorf("decoding stored program: %w", err)
	}
	if s.VMState, err = base64.StdEncoding.DecodeString(vmState); err != nil {
		return Session{}, fmt.Errorf("decoding stored vm state: %w", err)
	}
	if s.Vars, err = base64.StdEncoding.DecodeString(vars); err != nil {
		return Session{}, fmt.Errorf("decoding stored vars: %w", err)
	}
	return s, nil
}

func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == 19 {
			return ErrConflict
		}
		return fmt.Errorf("%s", sqlite.ErrorCodeString[sqliteErr.Code()])
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
