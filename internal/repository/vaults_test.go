package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mirrorx/vault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vaultCols = []string{
	"id", "user_id", "name", "description", "password_protected", "password_hash", "last_accessed_at",
	"created_at", "updated_at",
}

func TestVaultListByUser(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresVaultRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM vaults WHERE user_id = $1 ORDER BY created_at DESC`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(vaultCols).
			AddRow("v1", "u1", "Main", "", true, "hash", now, now, now).
			AddRow("v2", "u1", "Side", "spare", false, "", nil, now, now))

	vaults, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, vaults, 2)
	assert.True(t, vaults[0].PasswordProtected)
	require.NotNil(t, vaults[0].LastAccessedAt)
	assert.Nil(t, vaults[1].LastAccessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultTouch(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresVaultRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE vaults SET last_accessed_at = now() WHERE id = $1`)).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"last_accessed_at"}).AddRow(now))

	at, err := repo.Touch(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, now, at)
}

func TestVaultDelete_NotFound(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresVaultRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM vaults WHERE id = $1`)).
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "v1"), models.ErrNotFound)
}

func TestAuditListByVault(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresAuditRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_logs WHERE vault_id = $1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs("v1", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "vault_id", "action", "entity_kind", "entity_id", "details", "created_at",
		}).AddRow("a1", "u1", "v1", "create", "operation", "op1", `{"name":"Nightfall"}`, now))

	logs, err := repo.ListByVault(context.Background(), "v1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Nightfall", logs[0].Details["name"])
	assert.Equal(t, "u1", logs[0].UserID)
}
