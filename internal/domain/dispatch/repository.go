package dispatch

import (
	"context"

	"fieldsync/internal/domain/entity"
)

// Tx - транзакция, в которой обработчик меняет сущности и диспетчер
// фиксирует запись журнала идемпотентности.
type Tx interface {
	entity.Store
	// ReserveLedger занимает ключ идемпотентности до вызова обработчика.
	// Возвращает ErrDuplicateMutation, если мутация уже записана.
	ReserveLedger(ctx context.Context, entry LedgerEntry) error
	// CompleteLedger дописывает ссылку на результат в занятую запись.
	CompleteLedger(ctx context.Context, mutationID, resultRef string) error
}

// UnitOfWork выполняет fn в одной транзакции: фиксирует при nil, откатывает при ошибке.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
}

type Ledger interface {
	// GetLedger возвращает ErrNotApplied, если мутация не применялась.
	GetLedger(ctx context.Context, mutationID string) (*LedgerEntry, error)
}

type Repository interface {
	Ledger
	UnitOfWork
}
