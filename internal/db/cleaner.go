package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartSessionCleaner periodically removes expired sessions and one-time
// passcodes until ctx is cancelled.
func StartSessionCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CleanupExpired(ctx, db, time.Now(), log)
			}
		}
	}()
}

// CleanupExpired deletes sessions and passcodes that expired before now.
func CleanupExpired(ctx context.Context, db *sql.DB, now time.Time, log *zap.Logger) {
	res, err := db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, now)
	if err != nil {
		log.Error("failed to clean expired sessions", zap.Error(err))
	} else if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("cleaned expired sessions", zap.Int64("removed", rows))
	}

	res, err = db.ExecContext(ctx, `DELETE FROM auth_codes WHERE expires_at < $1`, now)
	if err != nil {
		log.Error("failed to clean expired auth codes", zap.Error(err))
		return
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("cleaned expired auth codes", zap.Int64("removed", rows))
	}
}
