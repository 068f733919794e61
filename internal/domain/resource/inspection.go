package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
	"fieldsync/internal/domain/mutation"
)

type InspectionCreatePayload struct {
	InspectionID string         `json:"inspection_id" validate:"required,max=64"`
	JobID        string         `json:"job_id" validate:"required,max=64"`
	Results      map[string]any `json:"results,omitempty"`
}

type InspectionUpdatePayload struct {
	InspectionID string         `json:"inspection_id" validate:"required,max=64"`
	JobID        string         `json:"job_id" validate:"required,max=64"`
	Results      map[string]any `json:"results" validate:"required,min=1"`
}

type InspectionCreate struct{}

func (InspectionCreate) Validate(payload json.RawMessage) error {
	_, err := decode[InspectionCreatePayload](payload)
	return err
}

func (InspectionCreate) Apply(ctx context.Context, tx dispatch.Tx, actorID string, payload json.RawMessage) (string, error) {
	p, err := decode[InspectionCreatePayload](payload)
	if err != nil {
		return "", err
	}
	if err := requireJob(ctx, tx, p.JobID); err != nil {
		return "", err
	}

	inspection := &entity.Inspection{
		ID:        p.InspectionID,
		JobID:     p.JobID,
		Results:   p.Results,
		UpdatedBy: actorID,
	}
	if err := tx.CreateInspection(ctx, inspection); err != nil {
		return "", conflict(err, "inspection", p.InspectionID)
	}

	return Ref(RefInspection, p.InspectionID), nil
}

// InspectionUpdate сливает результаты осмотра по полям: каждое переданное
// поле перезаписывает сохраненное, остальные не меняются. После фиксации
// снимок осмотра отправляется в резервное хранилище.
type InspectionUpdate struct {
	reader Reader
	backup Backup
}

func NewInspectionUpdate(reader Reader, backup Backup) *InspectionUpdate {
	return &InspectionUpdate{reader: reader, backup: backup}
}

func (h *InspectionUpdate) Validate(payload json.RawMessage) error {
	_, err := decode[InspectionUpdatePayload](payload)
	return err
}

func (h *InspectionUpdate) Apply(ctx context.Context, tx dispatch.Tx, actorID string, payload json.RawMessage) (string, error) {
	p, err := decode[InspectionUpdatePayload](payload)
	if err != nil {
		return "", err
	}
	if err := requireJob(ctx, tx, p.JobID); err != nil {
		return "", err
	}

	cur, err := tx.GetInspection(ctx, p.InspectionID)
	switch {
	case err == nil && cur.JobID != p.JobID:
		return "", mutation.Validation(fmt.Errorf("inspection %s belongs to job %s", p.InspectionID, cur.JobID))
	case err != nil && !errors.Is(err, entity.ErrNotFound):
		return "", fmt.Errorf("get inspection: %w", err)
	}

	if _, err := tx.MergeInspectionResults(ctx, p.InspectionID, p.JobID, p.Results, actorID); err != nil {
		return "", fmt.Errorf("merge inspection: %w", err)
	}

	return Ref(RefInspection, p.InspectionID), nil
}

func (h *InspectionUpdate) FollowUp(ctx context.Context, _ string, resultRef string) error {
	if h.backup == nil || h.reader == nil {
		return nil
	}

	_, id, err := ParseRef(resultRef)
	if err != nil {
		return err
	}

	var snapshot *entity.Inspection
	err = h.reader.Read(ctx, func(store entity.Store) error {
		var err error
		snapshot, err = store.GetInspection(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("load inspection snapshot: %w", err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal inspection snapshot: %w", err)
	}

	key := fmt.Sprintf("inspections/%s/v%06d.json", snapshot.ID, snapshot.Version)
	if err := h.backup.Put(ctx, key, data); err != nil {
		return fmt.Errorf("backup inspection: %w", err)
	}
	return nil
}
