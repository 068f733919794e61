package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
)

type AuditRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewAuditRepository(db *Storage, log *slog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: log,
	}
}

// auditChainLock - ключ advisory-блокировки, под которой дописывается цепочка.
const auditChainLock = 0x6175646974

// Append сериализует запись цепочки между всеми экземплярами сервера.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Event, link func(prevHash string)) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			r.log.Warn("rollback failed", "error", rerr)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(auditChainLock)); err != nil {
		return fmt.Errorf("lock audit chain: %w", err)
	}

	var prev string
	err = tx.QueryRow(ctx,
		`SELECT event_hash FROM audit_events ORDER BY id DESC LIMIT 1`,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("select audit head: %w", err)
	}
	link(prev)

	err = tx.QueryRow(ctx,
		`INSERT INTO audit_events (kind, actor_id, subject, details, payload_hash, prev_hash, event_hash, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING id`,
		string(e.Kind), e.ActorID, e.Subject, e.Details, e.PayloadHash, e.PrevHash, e.EventHash, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit event: %w", err)
	}
	return nil
}

// List возвращает события от новых к старым.
func (r *AuditRepository) List(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	where := []string{"1=1"}
	args := make([]any, 0, 5)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.ActorID != "" {
		add("actor_id = $%d", q.ActorID)
	}
	if q.Subject != "" {
		add("subject = $%d", q.Subject)
	}
	if q.Kind != "" {
		add("kind = $%d", string(q.Kind))
	}
	args = append(args, q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, kind, actor_id, subject, details, payload_hash, prev_hash, event_hash, created_at
         FROM audit_events WHERE %s
         ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args),
	)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.ActorID, &e.Subject, &e.Details,
			&e.PayloadHash, &e.PrevHash, &e.EventHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
