// Package memory - хранилище в памяти процесса. Используется в тестах
// и для локального запуска сервера без PostgreSQL.
package memory

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
	"fieldsync/internal/domain/session"
)

type Store struct {
	mu sync.Mutex

	jobs        map[string]entity.Job
	inspections map[string]entity.Inspection
	equipment   map[string]entity.Equipment
	ledger      map[string]dispatch.LedgerEntry

	claims   *ClaimRepository
	audit    *AuditRepository
	sessions *SessionRepository

	now func() time.Time
}

func New() *Store {
	return &Store{
		jobs:        make(map[string]entity.Job),
		inspections: make(map[string]entity.Inspection),
		equipment:   make(map[string]entity.Equipment),
		ledger:      make(map[string]dispatch.LedgerEntry),
		claims:      &ClaimRepository{claims: make(map[string]claimRow)},
		audit:       &AuditRepository{},
		sessions:    &SessionRepository{actors: make(map[string]session.Actor)},
		now:         time.Now,
	}
}

func (s *Store) Claims() *ClaimRepository {
	return s.claims
}

func (s *Store) Audit() *AuditRepository {
	return s.audit
}

func (s *Store) Sessions() *SessionRepository {
	return s.sessions
}

func (s *Store) Close() error {
	return nil
}

// GetLedger реализует dispatch.Ledger.
func (s *Store) GetLedger(_ context.Context, mutationID string) (*dispatch.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ledger[mutationID]
	if !ok {
		return nil, dispatch.ErrNotApplied
	}
	return &e, nil
}

// LedgerSize возвращает число примененных мутаций.
func (s *Store) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// Do выполняет fn над копией изменений и переносит их в хранилище,
// только если fn вернула nil. Транзакции выполняются последовательно.
func (s *Store) Do(ctx context.Context, fn func(tx dispatch.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.jobs {
		s.jobs[k] = v
	}
	for k, v := range tx.inspections {
		s.inspections[k] = v
	}
	for k, v := range tx.equipment {
		s.equipment[k] = v
	}
	for k, v := range tx.ledger {
		s.ledger[k] = v
	}
	return nil
}

// Read выполняет fn на зафиксированных данных. Изменения fn отбрасываются.
func (s *Store) Read(_ context.Context, fn func(store entity.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(newTx(s))
}
