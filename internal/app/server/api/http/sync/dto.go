package sync

import (
	"time"

	"fieldsync/internal/domain/mutation"
)

type submitBatchInput struct {
	Body SubmitBatchRequest
}

// SubmitBatchRequest - пакет мутаций в порядке их создания на клиенте
type SubmitBatchRequest struct {
	ActorID   string              `json:"actor_id,omitempty" required:"false" doc:"Игнорируется, пользователь определяется по сессии"`
	Mutations []mutation.Mutation `json:"mutations" minItems:"1" maxItems:"500"`
}

type submitBatchOutput struct {
	Body SubmitBatchResponse
}

// SubmitBatchResponse - по одному результату на мутацию, в том же порядке
type SubmitBatchResponse struct {
	Outcomes []mutation.Outcome `json:"outcomes"`
}

type getLedgerInput struct {
	ID string `path:"id" minLength:"1" maxLength:"64" doc:"ID мутации"`
}

type getLedgerOutput struct {
	Body LedgerResponse
}

type LedgerResponse struct {
	MutationID string    `json:"mutation_id"`
	ActorID    string    `json:"actor_id"`
	Resource   string    `json:"resource"`
	Operation  string    `json:"operation"`
	ResultRef  string    `json:"result_ref"`
	AppliedAt  time.Time `json:"applied_at"`
}
