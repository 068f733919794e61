package resource

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
)

type JobCreatePayload struct {
	// JobID задается клиентом, чтобы последующие мутации той же
	// офлайн-сессии могли на него ссылаться.
	JobID        string     `json:"job_id" validate:"omitempty,max=64"`
	Customer     string     `json:"customer" validate:"required,max=200"`
	SiteAddress  string     `json:"site_address" validate:"required,max=500"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

type JobCreate struct{}

func (JobCreate) Validate(payload json.RawMessage) error {
	_, err := decode[JobCreatePayload](payload)
	return err
}

func (JobCreate) Apply(ctx context.Context, tx dispatch.Tx, actorID string, payload json.RawMessage) (string, error) {
	p, err := decode[JobCreatePayload](payload)
	if err != nil {
		return "", err
	}

	id := p.JobID
	if id == "" {
		id = uuid.NewString()
	}

	job := &entity.Job{
		ID:           id,
		Customer:     p.Customer,
		SiteAddress:  p.SiteAddress,
		ScheduledFor: p.ScheduledFor,
		CreatedBy:    actorID,
	}
	if err := tx.CreateJob(ctx, job); err != nil {
		return "", conflict(err, "job", id)
	}

	return Ref(RefJob, id), nil
}
