package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mirrorx/vault/internal/models"
)

// linkColumns maps owner kind -> target kind -> the owner's array column
// holding target ids.
var linkColumns = map[models.EntityKind]map[models.EntityKind]string{
	models.KindOperation: {
		models.KindPersona:  "linked_personas",
		models.KindPipeline: "linked_pipelines",
		models.KindResource: "linked_resources",
	},
	models.KindPersona: {
		models.KindOperation: "linked_operations",
		models.KindPipeline:  "linked_pipelines",
		models.KindResource:  "linked_resources",
	},
	models.KindPipeline: {
		models.KindOperation: "attached_operations",
		models.KindPersona:   "attached_personas",
		models.KindResource:  "attached_resources",
	},
	models.KindResource: {
		models.KindOperation: "linked_operations",
		models.KindPersona:   "linked_personas",
		models.KindPipeline:  "linked_pipelines",
	},
}

// LinkColumn returns the column on owner's table that stores ids of target kind.
func LinkColumn(owner, target models.EntityKind) (string, error) {
	col, ok := linkColumns[owner][target]
	if !ok {
		return "", fmt.Errorf("%w: %s cannot reference %s", models.ErrInvalidLink, owner, target)
	}
	return col, nil
}

// PostgresLinkRepository maintains the back-reference arrays between records.
type PostgresLinkRepository struct {
	// DB is the database handle used outside transactions.
	DB *sqlx.DB
}

// NewPostgresLinkRepository creates a link repository on db.
func NewPostgresLinkRepository(db *sqlx.DB) *PostgresLinkRepository {
	return &PostgresLinkRepository{DB: db}
}

// Exists reports whether ref names a record in the vault.
func (r *PostgresLinkRepository) Exists(ctx context.Context, vaultID string, ref models.Ref) (bool, error) {
	if !ref.Kind.Valid() {
		return false, fmt.Errorf("%w: unknown entity kind %q", models.ErrInvalidInput, ref.Kind)
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1 AND vault_id = $2)`, ref.Kind.Table())
	if err := sqlx.GetContext(ctx, conn(ctx, r.DB), &exists, query, ref.ID, vaultID); err != nil {
		return false, mapError("link exists", err)
	}
	return exists, nil
}

// AddLink appends target.ID to owner's array for target's kind, once.
func (r *PostgresLinkRepository) AddLink(ctx context.Context, vaultID string, owner, target models.Ref) error {
	col, err := LinkColumn(owner.Kind, target.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET %s = array_append(array_remove(%s, $1), $1), updated_at = now() WHERE id = $2 AND vault_id = $3`,
		owner.Kind.Table(), col, col,
	)
	res, err := conn(ctx, r.DB).ExecContext(ctx, query, target.ID, owner.ID, vaultID)
	if err != nil {
		return mapError("add link", err)
	}
	return expectAffected("add link", res)
}

// RemoveLink removes target.ID from owner's array for target's kind.
func (r *PostgresLinkRepository) RemoveLink(ctx context.Context, vaultID string, owner, target models.Ref) error {
	col, err := LinkColumn(owner.Kind, target.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET %s = array_remove(%s, $1), updated_at = now() WHERE id = $2 AND vault_id = $3`,
		owner.Kind.Table(), col, col,
	)
	res, err := conn(ctx, r.DB).ExecContext(ctx, query, target.ID, owner.ID, vaultID)
	if err != nil {
		return mapError("remove link", err)
	}
	return expectAffected("remove link", res)
}

// PurgeReferences removes target.ID from every array in the vault that can
// reference target's kind and returns the references that pointed at it.
func (r *PostgresLinkRepository) PurgeReferences(ctx context.Context, vaultID string, target models.Ref) ([]models.Ref, error) {
	var touched []models.Ref
	for _, owner := range models.Kinds {
		col, ok := linkColumns[owner][target.Kind]
		if !ok {
			continue
		}
		query := fmt.Sprintf(
			`UPDATE %s SET %s = array_remove(%s, $1), updated_at = now() WHERE vault_id = $2 AND $1 = ANY(%s) RETURNING id`,
			owner.Table(), col, col, col,
		)
		var ids []string
		if err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &ids, query, target.ID, vaultID); err != nil {
			return nil, mapError("purge references", err)
		}
		for _, id := range ids {
			touched = append(touched, models.Ref{Kind: owner, ID: id})
		}
	}
	return touched, nil
}
