package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/claim"
)

type ClaimRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewClaimRepository(db *Storage, log *slog.Logger) *ClaimRepository {
	return &ClaimRepository{
		db:  db,
		log: log,
	}
}

// TryAcquire: победителя определяет один INSERT ... ON CONFLICT. Строка
// перезаписывается, только если ее держит тот же пользователь или аренда истекла.
func (r *ClaimRepository) TryAcquire(ctx context.Context, taskID, actorID string, now, expiresAt time.Time) (claim.Acquisition, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return claim.Acquisition{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var acq claim.Acquisition

	prev, err := scanClaim(tx.QueryRow(ctx,
		`SELECT task_id, holder_id, claimed_at, expires_at
         FROM task_claims WHERE task_id = $1 FOR UPDATE`,
		taskID,
	))
	switch {
	case err == nil:
		acq.Previous = prev
	case !errors.Is(err, claim.ErrNotFound):
		return claim.Acquisition{}, err
	}

	cur, err := scanClaim(tx.QueryRow(ctx,
		`INSERT INTO task_claims (task_id, holder_id, claimed_at, expires_at)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (task_id) DO UPDATE SET
             holder_id = EXCLUDED.holder_id,
             claimed_at = CASE WHEN task_claims.holder_id = EXCLUDED.holder_id
                               THEN task_claims.claimed_at
                               ELSE EXCLUDED.claimed_at END,
             expires_at = EXCLUDED.expires_at
         WHERE task_claims.holder_id = EXCLUDED.holder_id
            OR task_claims.expires_at <= $3
         RETURNING task_id, holder_id, claimed_at, expires_at`,
		taskID, actorID, now, expiresAt,
	))
	switch {
	case err == nil:
		acq.Current = *cur
		acq.Acquired = true
	case errors.Is(err, claim.ErrNotFound):
		// Задачу держит другой пользователь.
		cur, err = scanClaim(tx.QueryRow(ctx,
			`SELECT task_id, holder_id, claimed_at, expires_at
             FROM task_claims WHERE task_id = $1`,
			taskID,
		))
		if err != nil {
			return claim.Acquisition{}, err
		}
		acq.Current = *cur
	default:
		return claim.Acquisition{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return claim.Acquisition{}, fmt.Errorf("commit claim: %w", err)
	}
	return acq, nil
}

func (r *ClaimRepository) Release(ctx context.Context, taskID, actorID string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM task_claims WHERE task_id = $1 AND holder_id = $2`,
		taskID, actorID,
	)
	if err != nil {
		return false, fmt.Errorf("delete claim: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ClaimRepository) Get(ctx context.Context, taskID string) (*claim.Claim, error) {
	return scanClaim(r.db.Pool().QueryRow(ctx,
		`SELECT task_id, holder_id, claimed_at, expires_at
         FROM task_claims WHERE task_id = $1`,
		taskID,
	))
}

func scanClaim(row pgx.Row) (*claim.Claim, error) {
	var c claim.Claim
	err := row.Scan(&c.TaskID, &c.HolderID, &c.ClaimedAt, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, claim.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	return &c, nil
}
