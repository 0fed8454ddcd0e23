package auth

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_CreateUserDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateUser(context.Background(), User{ID: "u1", Email: "a@b.uz", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "email", "password_hash", "full_name", "avatar_url", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("a@b.uz").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@b.uz", "hash", "Ali", "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("x@b.uz").
		WillReturnError(sql.ErrNoRows)

	u, err := store.UserByEmail(context.Background(), "a@b.uz")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)

	u, err = store.UserByEmail(context.Background(), "x@b.uz")
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUserMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateUser(context.Background(), User{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_RefreshToken(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour).UTC()
	revoked := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens")).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash", "user_id", "expires_at", "revoked_at"}).
			AddRow("h1", "u1", exp, revoked))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tok, err := store.RefreshToken(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, tok.RevokedAt)
	assert.Equal(t, "u1", tok.UserID)

	revokedNow, err := store.RevokeRefreshToken(context.Background(), "h1", time.Now())
	require.NoError(t, err)
	assert.False(t, revokedNow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RevokeRefreshTokenOnce(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	revoked, err := store.RevokeRefreshToken(context.Background(), "h1", time.Now())
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
