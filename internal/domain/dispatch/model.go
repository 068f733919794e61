package dispatch

import (
	"time"

	"fieldsync/internal/domain/mutation"
)

// LedgerEntry - запись о примененной мутации
type LedgerEntry struct {
	MutationID string             `json:"mutation_id"`
	ActorID    string             `json:"actor_id"`
	Resource   mutation.Resource  `json:"resource"`
	Operation  mutation.Operation `json:"operation"`
	ResultRef  string             `json:"result_ref"`
	AppliedAt  time.Time          `json:"applied_at"`
}

// ServiceConfig - параметры пула диспетчера
type ServiceConfig struct {
	Workers   int
	QueueSize int
	// FollowUpTimeout ограничивает побочный эффект после фиксации.
	FollowUpTimeout time.Duration
}
