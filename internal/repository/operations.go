package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
)

const operationColumns = `id, vault_id, name, objective, mission_title, status, priority, deadline, tags,
	linked_personas, linked_pipelines, linked_resources, created_at, updated_at`

// operationRow is the storage shape of an operation.
type operationRow struct {
	ID              string         `db:"id"`
	VaultID         string         `db:"vault_id"`
	Name            string         `db:"name"`
	Objective       string         `db:"objective"`
	MissionTitle    string         `db:"mission_title"`
	Status          string         `db:"status"`
	Priority        string         `db:"priority"`
	Deadline        sql.NullTime   `db:"deadline"`
	Tags            pq.StringArray `db:"tags"`
	LinkedPersonas  pq.StringArray `db:"linked_personas"`
	LinkedPipelines pq.StringArray `db:"linked_pipelines"`
	LinkedResources pq.StringArray `db:"linked_resources"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toOperationRow(o *models.Operation) operationRow {
	row := operationRow{
		ID:              o.ID,
		VaultID:         o.VaultID,
		Name:            o.Name,
		Objective:       o.Objective,
		MissionTitle:    o.MissionTitle,
		Status:          string(o.Status),
		Priority:        string(o.Priority),
		Tags:            stringArray(o.Tags),
		LinkedPersonas:  stringArray(o.LinkedPersonas),
		LinkedPipelines: stringArray(o.LinkedPipelines),
		LinkedResources: stringArray(o.LinkedResources),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Deadline != nil {
		row.Deadline = sql.NullTime{Time: *o.Deadline, Valid: true}
	}
	return row
}

func fromOperationRow(r operationRow) *models.Operation {
	o := &models.Operation{
		ID:              r.ID,
		VaultID:         r.VaultID,
		Name:            r.Name,
		Objective:       r.Objective,
		MissionTitle:    r.MissionTitle,
		Status:          models.OperationStatus(r.Status),
		Priority:        models.Priority(r.Priority),
		Tags:            stringSlice(r.Tags),
		LinkedPersonas:  stringSlice(r.LinkedPersonas),
		LinkedPipelines: stringSlice(r.LinkedPipelines),
		LinkedResources: stringSlice(r.LinkedResources),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Deadline.Valid {
		d := r.Deadline.Time
		o.Deadline = &d
	}
	return o
}

// PostgresOperationRepository stores operations in PostgreSQL.
type PostgresOperationRepository struct {
	// DB is the database handle used outside transactions.
	DB *sqlx.DB
}

// NewPostgresOperationRepository creates an operation repository on db.
func NewPostgresOperationRepository(db *sqlx.DB) *PostgresOperationRepository {
	return &PostgresOperationRepository{DB: db}
}

// ListByVault returns the vault's operations, newest first.
func (r *PostgresOperationRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.Operation, error) {
	var rows []operationRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows,
		`SELECT `+operationColumns+` FROM operations WHERE vault_id = $1 ORDER BY created_at DESC`, vaultID)
	if err != nil {
		return nil, mapError("list operations", err)
	}
	out := make([]*models.Operation, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromOperationRow(row))
	}
	return out, nil
}

// Get returns one operation of the vault.
func (r *PostgresOperationRepository) Get(ctx context.Context, vaultID, id string) (*models.Operation, error) {
	var row operationRow
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &row,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1 AND vault_id = $2`+lockClause(ctx), id, vaultID)
	if err != nil {
		return nil, mapError("get operation", err)
	}
	return fromOperationRow(row), nil
}

// Create inserts o, assigning an id when it has none, and returns the stored row.
func (r *PostgresOperationRepository) Create(ctx context.Context, o *models.Operation) (*models.Operation, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := toOperationRow(o)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO operations (id, vault_id, name, objective, mission_title, status, priority, deadline, tags,
			linked_personas, linked_pipelines, linked_resources)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Objective, row.MissionTitle, row.Status, row.Priority, row.Deadline,
		row.Tags, row.LinkedPersonas, row.LinkedPipelines, row.LinkedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("create operation", err)
	}
	return fromOperationRow(row), nil
}

// Update writes every mutable field of o and stamps updated_at.
func (r *PostgresOperationRepository) Update(ctx context.Context, o *models.Operation) (*models.Operation, error) {
	row := toOperationRow(o)
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE operations SET name = $3, objective = $4, mission_title = $5, status = $6, priority = $7,
			deadline = $8, tags = $9, linked_personas = $10, linked_pipelines = $11, linked_resources = $12,
			updated_at = now()
		WHERE id = $1 AND vault_id = $2
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.Objective, row.MissionTitle, row.Status, row.Priority, row.Deadline,
		row.Tags, row.LinkedPersonas, row.LinkedPipelines, row.LinkedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("update operation", err)
	}
	return fromOperationRow(row), nil
}

// Delete removes one operation of the vault.
func (r *PostgresOperationRepository) Delete(ctx context.Context, vaultID, id string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM operations WHERE id = $1 AND vault_id = $2`, id, vaultID)
	if err != nil {
		return mapError("delete operation", err)
	}
	return expectAffected("delete operation", res)
}
