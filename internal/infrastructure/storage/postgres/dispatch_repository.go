package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
)

// DispatchRepository - журнал идемпотентности и единица работы диспетчера
type DispatchRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewDispatchRepository(db *Storage, log *slog.Logger) *DispatchRepository {
	return &DispatchRepository{
		db:  db,
		log: log,
	}
}

func (r *DispatchRepository) GetLedger(ctx context.Context, mutationID string) (*dispatch.LedgerEntry, error) {
	var e dispatch.LedgerEntry
	err := r.db.Pool().QueryRow(ctx,
		`SELECT mutation_id, actor_id, resource, operation, result_ref, applied_at
         FROM mutation_ledger WHERE mutation_id = $1`,
		mutationID,
	).Scan(&e.MutationID, &e.ActorID, &e.Resource, &e.Operation, &e.ResultRef, &e.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispatch.ErrNotApplied
	}
	if err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	return &e, nil
}

func (r *DispatchRepository) Do(ctx context.Context, fn func(tx dispatch.Tx) error) error {
	tx, err := r.db.Pool().BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			r.log.Warn("rollback failed", "error", rerr)
		}
	}()

	if err := fn(&pgTx{entityStore: entityStore{q: tx}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return dispatch.ErrDuplicateMutation
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Read выполняет fn вне транзакции на зафиксированных данных.
func (r *DispatchRepository) Read(ctx context.Context, fn func(store entity.Store) error) error {
	return fn(entityStore{q: r.db.Pool()})
}

type pgTx struct {
	entityStore
	tx pgx.Tx
}

// ReserveLedger вставляет строку журнала первой в транзакции. Параллельная
// вставка того же ключа ждет фиксации и получает нарушение уникальности.
func (t *pgTx) ReserveLedger(ctx context.Context, e dispatch.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO mutation_ledger (mutation_id, actor_id, resource, operation, result_ref, applied_at)
         VALUES ($1, $2, $3, $4, '', $5)`,
		e.MutationID, e.ActorID, string(e.Resource), string(e.Operation), e.AppliedAt,
	)
	if isUniqueViolation(err) {
		return dispatch.ErrDuplicateMutation
	}
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}

func (t *pgTx) CompleteLedger(ctx context.Context, mutationID, resultRef string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE mutation_ledger SET result_ref = $2 WHERE mutation_id = $1`,
		mutationID, resultRef,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger entry %s is not reserved", mutationID)
	}
	return nil
}
