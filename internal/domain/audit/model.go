package audit

import "time"

// Kind - тип события журнала аудита
type Kind string

const (
	KindMutationApplied      Kind = "mutation.applied"
	KindMutationFailed       Kind = "mutation.failed"
	KindClaimAcquired        Kind = "claim.acquired"
	KindClaimRenewed         Kind = "claim.renewed"
	KindClaimRejected        Kind = "claim.rejected"
	KindClaimReleased        Kind = "claim.released"
	KindClaimExpiredTakeover Kind = "claim.expired_takeover"
)

// Event - запись журнала аудита. Записи связаны в цепочку хэшей:
// EventHash каждой записи учитывает EventHash предыдущей.
type Event struct {
	ID          int64          `json:"id"`
	Kind        Kind           `json:"kind"`
	ActorID     string         `json:"actor_id"`
	Subject     string         `json:"subject"`
	Details     map[string]any `json:"details,omitempty"`
	PayloadHash string         `json:"payload_hash"`
	PrevHash    string         `json:"prev_hash"`
	EventHash   string         `json:"event_hash"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Query - фильтр выборки событий
type Query struct {
	ActorID string
	Subject string
	Kind    Kind
	Limit   int
	Offset  int
}
