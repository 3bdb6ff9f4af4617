package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pqError(code string) error {
	return &pq.Error{Code: pq.ErrorCode(code)}
}

func TestCreateProfile(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles (id, email, full_name, password_hash, email_confirmed)`)).
		WithArgs(sqlmock.AnyArg(), "ann@example.com", "Ann", "hash", false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	p, err := repo.CreateProfile(context.Background(), &models.Profile{
		Email: "ann@example.com", FullName: "Ann", PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, now, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProfile_DuplicateEmail(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WillReturnError(pqError(pgUniqueViolationCode))

	_, err := repo.CreateProfile(context.Background(), &models.Profile{Email: "ann@example.com"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestGetProfileByEmail(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE email = $1`)).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "full_name", "password_hash", "email_confirmed", "created_at", "updated_at",
		}).AddRow("u1", "ann@example.com", "Ann", "hash", true, now, now))

	p, err := repo.GetProfileByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, p.EmailConfirmed)
	assert.Equal(t, "hash", p.PasswordHash)
}

func TestGetSession_NotFound(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_sessions WHERE id = $1`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}))

	_, err := repo.GetSession(context.Background(), "s1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSaveCode(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)
	exp := time.Now().Add(10 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO auth_codes (email, code_hash, expires_at, attempts)`)).
		WithArgs("ann@example.com", "h", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveCode(context.Background(), &models.AuthCode{Email: "ann@example.com", CodeHash: "h", ExpiresAt: exp})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAccountRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO user_sessions (id, user_id, expires_at)`)).
		WithArgs(sqlmock.AnyArg(), "u1", now.Add(time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	s := &models.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, now, s.CreatedAt)
}
