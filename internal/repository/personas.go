package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
)

const personaColumns = `id, vault_id, name, context, status, linked_operations, linked_pipelines, linked_resources,
	created_at, updated_at`

type personaRow struct {
	ID               string         `db:"id"`
	VaultID          string         `db:"vault_id"`
	Name             string         `db:"name"`
	Context          string         `db:"context"`
	Status           string         `db:"status"`
	LinkedOperations pq.StringArray `db:"linked_operations"`
	LinkedPipelines  pq.StringArray `db:"linked_pipelines"`
	LinkedResources  pq.StringArray `db:"linked_resources"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toPersonaRow(p *models.Persona) personaRow {
	return personaRow{
		ID:               p.ID,
		VaultID:          p.VaultID,
		Name:             p.Name,
		Context:          p.Context,
		Status:           string(p.Status),
		LinkedOperations: stringArray(p.LinkedOperations),
		LinkedPipelines:  stringArray(p.LinkedPipelines),
		LinkedResources:  stringArray(p.LinkedResources),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func fromPersonaRow(r personaRow) *models.Persona {
	return &models.Persona{
		ID:               r.ID,
		VaultID:          r.VaultID,
		Name:             r.Name,
		Context:          r.Context,
		Status:           models.PersonaStatus(r.Status),
		LinkedOperations: stringSlice(r.LinkedOperations),
		LinkedPipelines:  stringSlice(r.LinkedPipelines),
		LinkedResources:  stringSlice(r.LinkedResources),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// PostgresPersonaRepository stores personas in PostgreSQL.
type PostgresPersonaRepository struct {
	DB *sqlx.DB
}

// NewPostgresPersonaRepository creates a persona repository on db.
func NewPostgresPersonaRepository(db *sqlx.DB) *PostgresPersonaRepository {
	return &PostgresPersonaRepository{DB: db}
}

// ListByVault returns the vault's personas, newest first.
func (r *PostgresPersonaRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.Persona, error) {
	var rows []personaRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows,
		`SELECT `+personaColumns+` FROM personas WHERE vault_id = $1 ORDER BY created_at DESC`, vaultID)
	if err != nil {
		return nil, mapError("list personas", err)
	}
	out := make([]*models.Persona, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromPersonaRow(row))
	}
	return out, nil
}

func (r *PostgresPersonaRepository) Get(ctx context.Context, vaultID, id string) (*models.Persona, error) {
	var row personaRow
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &row,
		`SELECT `+personaColumns+` FROM personas WHERE id = $1 AND vault_id = $2`+lockClause(ctx), id, vaultID)
	if err != nil {
		return nil, mapError("get persona", err)
	}
	return fromPersonaRow(row), nil
}

func (r *PostgresPersonaRepository) Create(ctx context.Context, p *models.Persona) (*models.Persona, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := toPersonaRow(p)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO personas (id, vault_id, name, context, status, linked_operations, linked_pipelines, linked_resources)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Context, row.Status,
		row.LinkedOperations, row.LinkedPipelines, row.LinkedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("create persona", err)
	}
	return fromPersonaRow(row), nil
}

func (r *PostgresPersonaRepository) Update(ctx context.Context, p *models.Persona) (*models.Persona, error) {
	row := toPersonaRow(p)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE personas SET name = $3, context = $4, status = $5, linked_operations = $6, linked_pipelines = $7,
			linked_resources = $8, updated_at = now()
		WHERE id = $1 AND vault_id = $2
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Context, row.Status,
		row.LinkedOperations, row.LinkedPipelines, row.LinkedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("update persona", err)
	}
	return fromPersonaRow(row), nil
}

func (r *PostgresPersonaRepository) Delete(ctx context.Context, vaultID, id string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM personas WHERE id = $1 AND vault_id = $2`, id, vaultID)
	if err != nil {
		return mapError("delete persona", err)
	}
	return expectAffected("delete persona", res)
}
