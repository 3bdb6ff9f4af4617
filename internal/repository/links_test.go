package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorx/vault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestLinkColumn(t *testing.T) {
	tests := []struct {
		owner, target models.EntityKind
		want          string
		wantErr       bool
	}{
		{models.KindOperation, models.KindPersona, "linked_personas", false},
		{models.KindPersona, models.KindOperation, "linked_operations", false},
		{models.KindPipeline, models.KindOperation, "attached_operations", false},
		{models.KindPipeline, models.KindResource, "attached_resources", false},
		{models.KindResource, models.KindPipeline, "linked_pipelines", false},
		{models.KindResource, models.KindResource, "", true},
		{"vault", models.KindPersona, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.owner)+"->"+string(tt.target), func(t *testing.T) {
			got, err := LinkColumn(tt.owner, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinkColumnsCoverEveryPair(t *testing.T) {
	for _, owner := range models.Kinds {
		for _, target := range models.Kinds {
			if owner == target {
				continue
			}
			_, err := LinkColumn(owner, target)
			assert.NoError(t, err, "%s -> %s", owner, target)
		}
	}
}

func TestAddLink(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	owner := models.Ref{Kind: models.KindPersona, ID: "p1"}
	target := models.Ref{Kind: models.KindOperation, ID: "op1"}

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE personas SET linked_operations = array_append(array_remove(linked_operations, $1), $1)`)).
		WithArgs("op1", "p1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddLink(context.Background(), "v1", owner, target))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddLink_MissingOwner(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pipelines SET attached_resources`)).
		WithArgs("r1", "pl1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddLink(context.Background(), "v1",
		models.Ref{Kind: models.KindPipeline, ID: "pl1"},
		models.Ref{Kind: models.KindResource, ID: "r1"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddLink_SameKindRejected(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	err := repo.AddLink(context.Background(), "v1",
		models.Ref{Kind: models.KindPersona, ID: "a"},
		models.Ref{Kind: models.KindPersona, ID: "b"})
	assert.ErrorIs(t, err, models.ErrInvalidLink)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLink(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE operations SET linked_resources = array_remove(linked_resources, $1)`)).
		WithArgs("r1", "op1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RemoveLink(context.Background(), "v1",
		models.Ref{Kind: models.KindOperation, ID: "op1"},
		models.Ref{Kind: models.KindResource, ID: "r1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM resources WHERE id = $1 AND vault_id = $2)`)).
		WithArgs("r1", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "v1", models.Ref{Kind: models.KindResource, ID: "r1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeReferences(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	target := models.Ref{Kind: models.KindResource, ID: "r1"}

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE operations SET linked_resources = array_remove(linked_resources, $1)`)).
		WithArgs("r1", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("op1"))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE personas SET linked_resources = array_remove(linked_resources, $1)`)).
		WithArgs("r1", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE pipelines SET attached_resources = array_remove(attached_resources, $1)`)).
		WithArgs("r1", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pl1").AddRow("pl2"))

	touched, err := repo.PurgeReferences(context.Background(), "v1", target)
	require.NoError(t, err)
	assert.Equal(t, []models.Ref{
		{Kind: models.KindOperation, ID: "op1"},
		{Kind: models.KindPipeline, ID: "pl1"},
		{Kind: models.KindPipeline, ID: "pl2"},
	}, touched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeReferences_Error(t *testing.T) {
	db, mock := setupDB(t)
	repo := NewPostgresLinkRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE personas SET linked_operations`)).
		WillReturnError(errors.New("boom"))

	_, err := repo.PurgeReferences(context.Background(), "v1", models.Ref{Kind: models.KindOperation, ID: "op1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge references")
}
