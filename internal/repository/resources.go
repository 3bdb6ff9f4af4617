package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
)

const resourceColumns = `id, vault_id, name, value, category, context, linked_operations, linked_personas,
	linked_pipelines, created_at, updated_at`

type resourceRow struct {
	ID               string         `db:"id"`
	VaultID          string         `db:"vault_id"`
	Name             string         `db:"name"`
	Value            string         `db:"value"`
	Category         string         `db:"category"`
	Context          string         `db:"context"`
	LinkedOperations pq.StringArray `db:"linked_operations"`
	LinkedPersonas   pq.StringArray `db:"linked_personas"`
	LinkedPipelines  pq.StringArray `db:"linked_pipelines"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toResourceRow(r *models.Resource) resourceRow {
	return resourceRow{
		ID:               r.ID,
		VaultID:          r.VaultID,
		Name:             r.Name,
		Value:            r.Value,
		Category:         r.Category,
		Context:          r.Context,
		LinkedOperations: stringArray(r.LinkedOperations),
		LinkedPersonas:   stringArray(r.LinkedPersonas),
		LinkedPipelines:  stringArray(r.LinkedPipelines),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromResourceRow(r resourceRow) *models.Resource {
	return &models.Resource{
		ID:               r.ID,
		VaultID:          r.VaultID,
		Name:             r.Name,
		Value:            r.Value,
		Category:         r.Category,
		Context:          r.Context,
		LinkedOperations: stringSlice(r.LinkedOperations),
		LinkedPersonas:   stringSlice(r.LinkedPersonas),
		LinkedPipelines:  stringSlice(r.LinkedPipelines),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// PostgresResourceRepository stores resources in PostgreSQL.
type PostgresResourceRepository struct {
	DB *sqlx.DB
}

// NewPostgresResourceRepository creates a resource repository on db.
func NewPostgresResourceRepository(db *sqlx.DB) *PostgresResourceRepository {
	return &PostgresResourceRepository{DB: db}
}

// ListByVault returns the vault's resources, newest first.
func (r *PostgresResourceRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.Resource, error) {
	var rows []resourceRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows,
		`SELECT `+resourceColumns+` FROM resources WHERE vault_id = $1 ORDER BY created_at DESC`, vaultID)
	if err != nil {
		return nil, mapError("list resources", err)
	}
	out := make([]*models.Resource, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromResourceRow(row))
	}
	return out, nil
}

func (r *PostgresResourceRepository) Get(ctx context.Context, vaultID, id string) (*models.Resource, error) {
	var row resourceRow
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &row,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1 AND vault_id = $2`+lockClause(ctx), id, vaultID)
	if err != nil {
		return nil, mapError("get resource", err)
	}
	return fromResourceRow(row), nil
}

func (r *PostgresResourceRepository) Create(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	row := toResourceRow(res)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO resources (id, vault_id, name, value, category, context, linked_operations, linked_personas,
			linked_pipelines)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Value, row.Category, row.Context,
		row.LinkedOperations, row.LinkedPersonas, row.LinkedPipelines,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("create resource", err)
	}
	return fromResourceRow(row), nil
}

func (r *PostgresResourceRepository) Update(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	row := toResourceRow(res)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE resources SET name = $3, value = $4, category = $5, context = $6, linked_operations = $7,
			linked_personas = $8, linked_pipelines = $9, updated_at = now()
		WHERE id = $1 AND vault_id = $2
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Value, row.Category, row.Context,
		row.LinkedOperations, row.LinkedPersonas, row.LinkedPipelines,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("update resource", err)
	}
	return fromResourceRow(row), nil
}

func (r *PostgresResourceRepository) Delete(ctx context.Context, vaultID, id string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM resources WHERE id = $1 AND vault_id = $2`, id, vaultID)
	if err != nil {
		return mapError("delete resource", err)
	}
	return expectAffected("delete resource", res)
}
