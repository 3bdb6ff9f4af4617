package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorx/vault/internal/models"
)

const vaultColumns = `id, user_id, name, description, password_protected, password_hash, last_accessed_at,
	created_at, updated_at`

type vaultRow struct {
	ID                string       `db:"id"`
	UserID            string       `db:"user_id"`
	Name              string       `db:"name"`
	Description       string       `db:"description"`
	PasswordProtected bool         `db:"password_protected"`
	PasswordHash      string       `db:"password_hash"`
	LastAccessedAt    sql.NullTime `db:"last_accessed_at"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

func fromVaultRow(r vaultRow) *models.Vault {
	v := &models.Vault{
		ID:                r.ID,
		UserID:            r.UserID,
		Name:              r.Name,
		Description:       r.Description,
		PasswordProtected: r.PasswordProtected,
		PasswordHash:      r.PasswordHash,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.LastAccessedAt.Valid {
		t := r.LastAccessedAt.Time
		v.LastAccessedAt = &t
	}
	return v
}

// PostgresVaultRepository stores vaults in PostgreSQL.
type PostgresVaultRepository struct {
	DB *sqlx.DB
}

// NewPostgresVaultRepository creates a vault repository on db.
func NewPostgresVaultRepository(db *sqlx.DB) *PostgresVaultRepository {
	return &PostgresVaultRepository{DB: db}
}

// Create inserts v and returns the stored vault.
func (r *PostgresVaultRepository) Create(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	out := *v
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO vaults (id, user_id, name, description, password_protected, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		v.ID, v.UserID, v.Name, v.Description, v.PasswordProtected, v.PasswordHash,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("create vault", err)
	}
	return &out, nil
}

// Get returns a vault by id regardless of owner.
func (r *PostgresVaultRepository) Get(ctx context.Context, id string) (*models.Vault, error) {
	var row vaultRow
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &row, `SELECT `+vaultColumns+` FROM vaults WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("get vault", err)
	}
	return fromVaultRow(row), nil
}

// ListByUser returns the user's vaults, newest first.
func (r *PostgresVaultRepository) ListByUser(ctx context.Context, userID string) ([]*models.Vault, error) {
	var rows []vaultRow
	err := sqlx.SelectContext(ctx, conn(ctx, r.DB), &rows,
		`SELECT `+vaultColumns+` FROM vaults WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError("list vaults", err)
	}
	out := make([]*models.Vault, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromVaultRow(row))
	}
	return out, nil
}

// Update writes name, description and password settings of v.
func (r *PostgresVaultRepository) Update(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	out := *v
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE vaults SET name = $2, description = $3, password_protected = $4, password_hash = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		v.ID, v.Name, v.Description, v.PasswordProtected, v.PasswordHash,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("update vault", err)
	}
	return &out, nil
}

// Delete removes a vault; its records are removed by cascade.
func (r *PostgresVaultRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM vaults WHERE id = $1`, id)
	if err != nil {
		return mapError("delete vault", err)
	}
	return expectAffected("delete vault", res)
}

// Touch stamps last_accessed_at and returns the new value.
func (r *PostgresVaultRepository) Touch(ctx context.Context, id string) (time.Time, error) {
	var at time.Time
	err := conn(ctx, r.DB).QueryRowxContext(ctx,
		`UPDATE vaults SET last_accessed_at = now() WHERE id = $1 RETURNING last_accessed_at`, id,
	).Scan(&at)
	if err != nil {
		return time.Time{}, mapError("touch vault", err)
	}
	return at, nil
}
