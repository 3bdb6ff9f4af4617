// Package repository provides PostgreSQL persistence for vaults, their
// linkable records, accounts, sessions and the audit trail.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorx/vault/internal/models"
)

// PostgreSQL error codes.
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

type txKey struct{}

// Transactor runs functions inside a database transaction carried by the context.
type Transactor struct {
	// DB is the database handle transactions are started on.
	DB *sqlx.DB
}

// NewTransactor creates a Transactor for db.
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{DB: db}
}

// WithinTx runs fn in a transaction. Repository calls made with the context
// passed to fn join the transaction. It commits when fn returns nil and rolls
// back otherwise. Nested calls reuse the outer transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// conn returns the transaction stored in ctx, or db when there is none.
func conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// lockClause adds a row lock to reads made inside a transaction.
func lockClause(ctx context.Context) string {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return " FOR UPDATE"
	}
	return ""
}

// mapError translates driver errors into model sentinels and wraps the rest with op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolationCode:
			return fmt.Errorf("%s: %w", op, models.ErrConflict)
		case pgForeignKeyViolationCode:
			return fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectAffected turns a zero-row result into ErrNotFound.
func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// stringArray converts a slice to a pq array that never encodes as NULL.
func stringArray(ids []string) pq.StringArray {
	if ids == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ids)
}

// stringSlice converts a scanned pq array to a non-nil slice.
func stringSlice(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}
