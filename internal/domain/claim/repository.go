package claim

import (
	"context"
	"time"
)

type Repository interface {
	// TryAcquire атомарно выдает аренду actorID, если задача свободна, аренда
	// истекла к моменту now или уже принадлежит actorID.
	TryAcquire(ctx context.Context, taskID, actorID string, now, expiresAt time.Time) (Acquisition, error)
	// Release удаляет аренду, только если ее держит actorID.
	Release(ctx context.Context, taskID, actorID string) (bool, error)
	// Get возвращает ErrNotFound, если строки нет. Истечение не проверяет.
	Get(ctx context.Context, taskID string) (*Claim, error)
}
