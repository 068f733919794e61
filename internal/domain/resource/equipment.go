package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
	"fieldsync/internal/domain/mutation"
)

type EquipmentCreatePayload struct {
	EquipmentID string         `json:"equipment_id" validate:"required,max=64"`
	JobID       string         `json:"job_id" validate:"required,max=64"`
	Kind        string         `json:"kind" validate:"required,max=100"`
	Serial      string         `json:"serial" validate:"required,max=100"`
	Details     map[string]any `json:"details,omitempty"`
}

// EquipmentUpdatePayload: пустые поля не меняются, details сливаются по ключам.
type EquipmentUpdatePayload struct {
	EquipmentID string         `json:"equipment_id" validate:"required,max=64"`
	JobID       string         `json:"job_id,omitempty" validate:"omitempty,max=64"`
	Kind        string         `json:"kind,omitempty" validate:"omitempty,max=100"`
	Serial      string         `json:"serial,omitempty" validate:"omitempty,max=100"`
	Details     map[string]any `json:"details,omitempty"`
}

type EquipmentCreate struct{}

func (EquipmentCreate) Validate(payload json.RawMessage) error {
	_, err := decode[EquipmentCreatePayload](payload)
	return err
}

func (EquipmentCreate) Apply(ctx context.Context, tx dispatch.Tx, actorID string, payload json.RawMessage) (string, error) {
	p, err := decode[EquipmentCreatePayload](payload)
	if err != nil {
		return "", err
	}
	if err := requireJob(ctx, tx, p.JobID); err != nil {
		return "", err
	}

	eq := &entity.Equipment{
		ID:        p.EquipmentID,
		JobID:     p.JobID,
		Kind:      p.Kind,
		Serial:    p.Serial,
		Details:   p.Details,
		UpdatedBy: actorID,
	}
	if err := tx.CreateEquipment(ctx, eq); err != nil {
		return "", conflict(err, "equipment", p.EquipmentID)
	}

	return Ref(RefEquipment, p.EquipmentID), nil
}

type EquipmentUpdate struct{}

func (EquipmentUpdate) Validate(payload json.RawMessage) error {
	_, err := decode[EquipmentUpdatePayload](payload)
	return err
}

func (EquipmentUpdate) Apply(ctx context.Context, tx dispatch.Tx, actorID string, payload json.RawMessage) (string, error) {
	p, err := decode[EquipmentUpdatePayload](payload)
	if err != nil {
		return "", err
	}

	eq, err := tx.GetEquipment(ctx, p.EquipmentID)
	if errors.Is(err, entity.ErrNotFound) {
		return "", mutation.Transient(fmt.Errorf("equipment %s not found", p.EquipmentID))
	}
	if err != nil {
		return "", fmt.Errorf("get equipment: %w", err)
	}

	if p.JobID != "" && p.JobID != eq.JobID {
		if err := requireJob(ctx, tx, p.JobID); err != nil {
			return "", err
		}
		eq.JobID = p.JobID
	}
	if p.Kind != "" {
		eq.Kind = p.Kind
	}
	if p.Serial != "" {
		eq.Serial = p.Serial
	}
	if len(p.Details) > 0 {
		if eq.Details == nil {
			eq.Details = make(map[string]any, len(p.Details))
		}
		maps.Copy(eq.Details, p.Details)
	}
	eq.UpdatedBy = actorID

	if err := tx.UpdateEquipment(ctx, eq); err != nil {
		return "", fmt.Errorf("update equipment: %w", err)
	}

	return Ref(RefEquipment, p.EquipmentID), nil
}
