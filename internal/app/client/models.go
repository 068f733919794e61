package client

import (
	"context"
	"errors"
	"time"

	"fieldsync/internal/domain/mutation"
)

var (
	ErrEntryNotFound  = errors.New("мутация не найдена")
	ErrNotRetryable   = errors.New("повторить можно только мутацию в статусе FAILED")
	ErrNoActor        = errors.New("не задан ACTOR_ID")
	ErrInvalidPayload = errors.New("payload должен быть JSON объектом")
)

// Entry - мутация в локальной очереди вместе с результатом синхронизации
type Entry struct {
	mutation.Mutation
	Seq         int64              `json:"seq"`
	ActorID     string             `json:"actor_id"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	ErrorKind   mutation.ErrorKind `json:"error_kind,omitempty"`
	ErrorReason string             `json:"error_reason,omitempty"`
	ResultRef   string             `json:"result_ref,omitempty"`
}

// Counts - сводка очереди для интерфейса
type Counts struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// ApplyResult - что стало с мутациями после разбора ответа сервера
type ApplyResult struct {
	Completed int
	Failed    int
	Requeued  int
}

// FlushResult - итог одного прохода синхронизации
type FlushResult struct {
	Submitted int `json:"submitted"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
	Pruned    int `json:"pruned"`
}

// Storage - локальное хранилище очереди мутаций
type Storage interface {
	Insert(ctx context.Context, e *Entry) error
	// NextBatch атомарно переводит до limit PENDING мутаций в SUBMITTED.
	NextBatch(ctx context.Context, actorID string, maxAttempts, limit int, now time.Time) ([]Entry, error)
	ApplyOutcomes(ctx context.Context, outcomes []mutation.Outcome, maxAttempts int, now time.Time) (ApplyResult, error)
	Requeue(ctx context.Context, ids []string) error
	RecoverSubmitted(ctx context.Context) (int, error)
	Counts(ctx context.Context, actorID string) (Counts, error)
	ListByStatus(ctx context.Context, actorID string, status mutation.Status, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Retry(ctx context.Context, id string) error
	Prune(ctx context.Context, completedBefore time.Time) (int64, error)
	Close() error
}
