package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
)

const pipelineColumns = `id, vault_id, name, step_count, active, status, steps, attached_personas,
	attached_operations, attached_resources, created_at, updated_at`

// pipelineRow is the storage shape of a pipeline; steps are kept as a JSON
// object keyed by step index.
type pipelineRow struct {
	ID                 string         `db:"id"`
	VaultID            string         `db:"vault_id"`
	Name               string         `db:"name"`
	StepCount          int            `db:"step_count"`
	Active             bool           `db:"active"`
	Status             string         `db:"status"`
	Steps              string         `db:"steps"`
	AttachedPersonas   pq.StringArray `db:"attached_personas"`
	AttachedOperations pq.StringArray `db:"attached_operations"`
	AttachedResources  pq.StringArray `db:"attached_resources"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func toPipelineRow(p *models.Pipeline) (pipelineRow, error) {
	steps := p.Steps
	if steps == nil {
		steps = map[int]models.PipelineStep{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return pipelineRow{}, fmt.Errorf("encode pipeline steps: %w", err)
	}
	return pipelineRow{
		ID:                 p.ID,
		VaultID:            p.VaultID,
		Name:               p.Name,
		StepCount:          p.StepCount,
		Active:             p.Active,
		Status:             string(p.Status),
		Steps:              string(raw),
		AttachedPersonas:   stringArray(p.AttachedTo.Personas),
		AttachedOperations: stringArray(p.AttachedTo.Operations),
		AttachedResources:  stringArray(p.AttachedTo.Resources),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

func fromPipelineRow(r pipelineRow) (*models.Pipeline, error) {
	steps := map[int]models.PipelineStep{}
	if r.Steps != "" {
		if err := json.Unmarshal([]byte(r.Steps), &steps); err != nil {
			return nil, fmt.Errorf("decode pipeline %s steps: %w", r.ID, err)
		}
	}
	return &models.Pipeline{
		ID:        r.ID,
		VaultID:   r.VaultID,
		Name:      r.Name,
		StepCount: r.StepCount,
		Active:    r.Active,
		Status:    models.PipelineStatus(r.Status),
		Steps:     steps,
		AttachedTo: models.AttachedTo{
			Personas:   stringSlice(r.AttachedPersonas),
			Operations: stringSlice(r.AttachedOperations),
			Resources:  stringSlice(r.AttachedResources),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// PostgresPipelineRepository stores pipelines in PostgreSQL.
type PostgresPipelineRepository struct {
	DB *sqlx.DB
}

// NewPostgresPipelineRepository creates a pipeline repository on db.
func NewPostgresPipelineRepository(db *sqlx.DB) *PostgresPipelineRepository {
	return &PostgresPipelineRepository{DB: db}
}

// ListByVault returns the vault's pipelines, newest first.
func (r *PostgresPipelineRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.Pipeline, error) {
	var rows []pipelineRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE vault_id = $1 ORDER BY created_at DESC`, vaultID)
	if err != nil {
		return nil, mapError("list pipelines", err)
	}
	out := make([]*models.Pipeline, 0, len(rows))
	for _, row := range rows {
		p, err := fromPipelineRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PostgresPipelineRepository) Get(ctx context.Context, vaultID, id string) (*models.Pipeline, error) {
	var row pipelineRow
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &row,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1 AND vault_id = $2`+lockClause(ctx), id, vaultID)
	if err != nil {
		return nil, mapError("get pipeline", err)
	}
	return fromPipelineRow(row)
}

func (r *PostgresPipelineRepository) Create(ctx context.Context, p *models.Pipeline) (*models.Pipeline, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row, err := toPipelineRow(p)
	if err != nil {
		return nil, err
	}
	err = conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO pipelines (id, vault_id, name, step_count, active, status, steps, attached_personas,
			attached_operations, attached_resources)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.StepCount, row.Active, row.Status, row.Steps,
		row.AttachedPersonas, row.AttachedOperations, row.AttachedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("create pipeline", err)
	}
	return fromPipelineRow(row)
}

func (r *PostgresPipelineRepository) Update(ctx context.Context, p *models.Pipeline) (*models.Pipeline, error) {
	row, err := toPipelineRow(p)
	if err != nil {
		return nil, err
	}
	err = conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE pipelines SET name = $3, step_count = $4, active = $5, status = $6, steps = $7,
			attached_personas = $8, attached_operations = $9, attached_resources = $10, updated_at = now()
		WHERE id = $1 AND vault_id = $2
		RETURNING created_at, updated_at`,
		row.ID, row.VaultID, row.Name, row.StepCount, row.Active, row.Status, row.Steps,
		row.AttachedPersonas, row.AttachedOperations, row.AttachedResources,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, mapError("update pipeline", err)
	}
	return fromPipelineRow(row)
}

func (r *PostgresPipelineRepository) Delete(ctx context.Context, vaultID, id string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM pipelines WHERE id = $1 AND vault_id = $2`, id, vaultID)
	if err != nil {
		return mapError("delete pipeline", err)
	}
	return expectAffected("delete pipeline", res)
}
