package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/metrics"
	"inkwell/utils"
)

// Database interface for database operations
type Database interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StartCleanupService runs the trash sweep and token expiry pass on a
// fixed interval until ctx is cancelled.
func StartCleanupService(ctx context.Context, db Database, retention, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		RunCleanupTasks(ctx, db, retention)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RunCleanupTasks(ctx, db, retention)
			}
		}
	}()
}

// RunCleanupTasks performs one sweep pass.
func RunCleanupTasks(ctx context.Context, db Database, retention time.Duration) {
	utils.LogInfo("Running scheduled cleanup tasks")

	swept, err := SweepStaleTrash(ctx, db, retention)
	if err != nil {
		utils.LogError("Trash sweep failed", err)
	} else if swept > 0 {
		utils.LogInfo(fmt.Sprintf("Permanently deleted %d stale trashed notes", swept))
	}

	cleared, err := ClearExpiredTokens(ctx, db)
	if err != nil {
		utils.LogError("Token expiry sweep failed", err)
	} else if cleared > 0 {
		utils.LogInfo(fmt.Sprintf("Cleared %d expired API tokens", cleared))
	}
}

// SweepStaleTrash permanently deletes notes whose trashed_at timestamp
// has aged past the retention window. The cutoff comparison lives in the
// DELETE itself, so a note restored between pass start and row delete is
// never lost; cascades remove versions, shares, tag links, and
// attachments with the note.
func SweepStaleTrash(ctx context.Context, db Database, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	tag, err := db.Exec(ctx, `
		DELETE FROM notes
		WHERE trashed AND trashed_at IS NOT NULL AND trashed_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	swept := tag.RowsAffected()
	if swept > 0 {
		metrics.AddSweptNotes(swept)
	}
	return swept, nil
}

// ClearExpiredTokens drops API token digests whose expiry has passed, so
// a stale credential cannot linger as a lookup target.
func ClearExpiredTokens(ctx context.Context, db Database) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE users
		SET api_token_hash = NULL, token_expires_at = NULL
		WHERE token_expires_at IS NOT NULL AND token_expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
