package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorx/vault/internal/models"
)

type auditRow struct {
	ID         string         `db:"id"`
	UserID     sql.NullString `db:"user_id"`
	VaultID    sql.NullString `db:"vault_id"`
	Action     string         `db:"action"`
	EntityKind string         `db:"entity_kind"`
	EntityID   string         `db:"entity_id"`
	Details    string         `db:"details"`
	CreatedAt  time.Time      `db:"created_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresAuditRepository stores the activity trail.
type PostgresAuditRepository struct {
	DB *sqlx.DB
}

// NewPostgresAuditRepository creates an audit repository on db.
func NewPostgresAuditRepository(db *sqlx.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{DB: db}
}

// Insert appends an entry to the trail.
func (r *PostgresAuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	err = conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO audit_logs (id, user_id, vault_id, action, entity_kind, entity_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		entry.ID, nullString(entry.UserID), nullString(entry.VaultID), entry.Action, entry.EntityKind,
		entry.EntityID, string(raw),
	).Scan(&entry.CreatedAt)
	return mapError("insert audit log", err)
}

// ListByVault returns up to limit entries of the vault, newest first.
func (r *PostgresAuditRepository) ListByVault(ctx context.Context, vaultID string, limit int) ([]*models.AuditLog, error) {
	var rows []auditRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows, `
		SELECT id, user_id, vault_id, action, entity_kind, entity_id, details, created_at
		FROM audit_logs WHERE vault_id = $1 ORDER BY created_at DESC LIMIT $2`, vaultID, limit)
	if err != nil {
		return nil, mapError("list audit logs", err)
	}
	out := make([]*models.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := &models.AuditLog{
			ID:         row.ID,
			UserID:     row.UserID.String,
			VaultID:    row.VaultID.String,
			Action:     row.Action,
			EntityKind: row.EntityKind,
			EntityID:   row.EntityID,
			CreatedAt:  row.CreatedAt,
		}
		if row.Details != "" {
			if err := json.Unmarshal([]byte(row.Details), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", row.ID, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
