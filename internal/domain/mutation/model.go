package mutation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Resource - тип сущности, к которой относится мутация
type Resource string

const (
	ResourceJob        Resource = "job"
	ResourceInspection Resource = "inspection"
	ResourceEquipment  Resource = "equipment"
)

// Validate проверяет, что ресурс известен.
func (r Resource) Validate() error {
	switch r {
	case ResourceJob, ResourceInspection, ResourceEquipment:
		return nil
	}
	return fmt.Errorf("неизвестный ресурс: %q", string(r))
}

func (r Resource) String() string {
	return string(r)
}

// Operation - вид изменения
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
)

// Validate проверяет, что операция известна.
func (o Operation) Validate() error {
	switch o {
	case OpCreate, OpUpdate:
		return nil
	}
	return fmt.Errorf("неизвестная операция: %q", string(o))
}

func (o Operation) String() string {
	return string(o)
}

// Status - состояние мутации в жизненном цикле
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (Status) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type: huma.TypeString,
		Enum: []any{
			string(StatusPending),
			string(StatusSubmitted),
			string(StatusCompleted),
			string(StatusFailed),
		},
	}
}

// Terminal сообщает, что статус больше не изменится без действия пользователя.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mutation - одно изменение, созданное клиентом. ID служит ключом идемпотентности
// и не меняется между повторными отправками.
type Mutation struct {
	ID            string          `json:"id" minLength:"1" maxLength:"64" doc:"Ключ идемпотентности"`
	Resource      Resource        `json:"resource"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status,omitempty" required:"false"`
	CreatedAt     time.Time       `json:"created_at" required:"false"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty" required:"false"`
	AttemptCount  int             `json:"attempt_count" required:"false"`
}

// Action возвращает пару ресурс/операция, по которой выбирается обработчик.
func (m Mutation) Action() string {
	return m.Resource.String() + "/" + m.Operation.String()
}

// Batch - упорядоченный список мутаций одного пользователя
type Batch struct {
	ActorID   string
	Mutations []Mutation
}

// Outcome - результат применения одной мутации
type Outcome struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	ResultRef   string    `json:"result_ref,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
	Retryable   bool      `json:"retryable,omitempty"`
}

// Completed создает успешный результат.
func Completed(id, resultRef string) Outcome {
	return Outcome{ID: id, Status: StatusCompleted, ResultRef: resultRef}
}

// Failed создает неуспешный результат из ошибки.
func Failed(id string, err error) Outcome {
	kind := KindOf(err)
	return Outcome{
		ID:          id,
		Status:      StatusFailed,
		ErrorKind:   kind,
		ErrorReason: err.Error(),
		Retryable:   kind.Retryable(),
	}
}
