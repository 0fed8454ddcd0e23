package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists users and refresh tokens.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u User) error

	SaveRefreshToken(ctx context.Context, t RefreshToken) error
	RefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error)
}

// PostgresStore keeps users and refresh tokens in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, full_name, avatar_url, created_at, updated_at`

// CreateUser inserts a user. A duplicate email maps to ErrEmailTaken.
func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
	return mapUniqueViolation(err)
}

// UserByID returns a user, or nil when missing.
func (s *PostgresStore) UserByID(ctx context.Context, id string) (*User, error) {
	return s.user(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UserByEmail returns a user, or nil when missing.
func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.user(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// UpdateUser rewrites the mutable profile fields.
func (s *PostgresStore) UpdateUser(ctx context.Context, u User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, full_name = $4, avatar_url = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.AvatarURL, u.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) user(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SaveRefreshToken stores the hash of an issued refresh token.
func (s *PostgresStore) SaveRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, t.Hash, t.UserID, t.ExpiresAt)
	return err
}

// RefreshToken returns a stored token, or nil when unknown.
func (s *PostgresStore) RefreshToken(ctx context.Context, hash string) (*RefreshToken, error) {
	var (
		t       RefreshToken
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash).Scan(&t.Hash, &t.UserID, &t.ExpiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	return &t, nil
}

// RevokeRefreshToken marks a live token revoked and reports whether this call
// did it. Revoking twice reports false the second time.
func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, hash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}
