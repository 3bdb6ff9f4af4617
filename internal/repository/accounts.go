package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorx/vault/internal/models"
)

const profileColumns = `id, email, full_name, password_hash, email_confirmed, created_at, updated_at`

// PostgresAccountRepository stores profiles, sessions and one-time passcodes.
type PostgresAccountRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB
}

// NewPostgresAccountRepository creates an account repository on db.
func NewPostgresAccountRepository(db *sqlx.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{DB: db}
}

// CreateProfile inserts a profile. A duplicate email yields ErrConflict.
func (r *PostgresAccountRepository) CreateProfile(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	out := *p
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		INSERT INTO profiles (id, email, full_name, password_hash, email_confirmed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Email, p.FullName, p.PasswordHash, p.EmailConfirmed,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("create profile", err)
	}
	return &out, nil
}

// GetProfileByEmail looks a profile up by its lower-cased email.
func (r *PostgresAccountRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &p, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email)
	if err != nil {
		return nil, mapError("get profile by email", err)
	}
	return &p, nil
}

// GetProfile looks a profile up by id.
func (r *PostgresAccountRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &p, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("get profile", err)
	}
	return &p, nil
}

// UpdateProfile writes full name, password hash and confirmation state.
func (r *PostgresAccountRepository) UpdateProfile(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	out := *p
	err := conn(ctx, r.DB).QueryRowxContext(ctx, `
		UPDATE profiles SET full_name = $2, password_hash = $3, email_confirmed = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.PasswordHash, p.EmailConfirmed,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapError("update profile", err)
	}
	return &out, nil
}

// CreateSession opens a session.
func (r *PostgresAccountRepository) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := conn(ctx, r.DB).QueryRowxContext(ctx,
		`INSERT INTO user_sessions (id, user_id, expires_at) VALUES ($1, $2, $3) RETURNING created_at`,
		s.ID, s.UserID, s.ExpiresAt,
	).Scan(&s.CreatedAt)
	return mapError("create session", err)
}

// GetSession returns a session by id.
func (r *PostgresAccountRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &s,
		`SELECT id, user_id, expires_at, created_at FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("get session", err)
	}
	return &s, nil
}

// DeleteSession removes a session; a missing session is not an error.
func (r *PostgresAccountRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return mapError("delete session", err)
}

// SaveCode stores a passcode for email, replacing any pending one.
func (r *PostgresAccountRepository) SaveCode(ctx context.Context, c *models.AuthCode) error {
	_, err := conn(ctx, r.DB).ExecContext(ctx, `
		INSERT INTO auth_codes (email, code_hash, expires_at, attempts) VALUES ($1, $2, $3, 0)
		ON CONFLICT (email) DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, attempts = 0`,
		c.Email, c.CodeHash, c.ExpiresAt,
	)
	return mapError("save auth code", err)
}

// GetCode returns the pending passcode for email.
func (r *PostgresAccountRepository) GetCode(ctx context.Context, email string) (*models.AuthCode, error) {
	var c models.AuthCode
	err := sqlx.GetContext(ctx, conn(ctx, r.DB), &c,
		`SELECT email, code_hash, expires_at, attempts FROM auth_codes WHERE email = $1`, email)
	if err != nil {
		return nil, mapError("get auth code", err)
	}
	return &c, nil
}

// IncrementCodeAttempts records a failed verification attempt.
func (r *PostgresAccountRepository) IncrementCodeAttempts(ctx context.Context, email string) error {
	_, err := conn(ctx, r.DB).ExecContext(ctx, `UPDATE auth_codes SET attempts = attempts + 1 WHERE email = $1`, email)
	return mapError("increment auth code attempts", err)
}

// DeleteCode removes the pending passcode for email.
func (r *PostgresAccountRepository) DeleteCode(ctx context.Context, email string) error {
	_, err := conn(ctx, r.DB).ExecContext(ctx, `DELETE FROM auth_codes WHERE email = $1`, email)
	return mapError("delete auth code", err)
}
