package memory

import (
	"context"
	"fmt"
	"maps"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
)

// memTx держит изменения до фиксации. Вызывается под Store.mu.
type memTx struct {
	s *Store

	jobs        map[string]entity.Job
	inspections map[string]entity.Inspection
	equipment   map[string]entity.Equipment
	ledger      map[string]dispatch.LedgerEntry
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:           s,
		jobs:        make(map[string]entity.Job),
		inspections: make(map[string]entity.Inspection),
		equipment:   make(map[string]entity.Equipment),
		ledger:      make(map[string]dispatch.LedgerEntry),
	}
}

func (tx *memTx) job(id string) (entity.Job, bool) {
	if j, ok := tx.jobs[id]; ok {
		return j, true
	}
	j, ok := tx.s.jobs[id]
	return j, ok
}

func (tx *memTx) inspection(id string) (entity.Inspection, bool) {
	if i, ok := tx.inspections[id]; ok {
		return i, true
	}
	i, ok := tx.s.inspections[id]
	return i, ok
}

func (tx *memTx) equipmentByID(id string) (entity.Equipment, bool) {
	if e, ok := tx.equipment[id]; ok {
		return e, true
	}
	e, ok := tx.s.equipment[id]
	return e, ok
}

func (tx *memTx) ReserveLedger(_ context.Context, entry dispatch.LedgerEntry) error {
	if _, ok := tx.ledger[entry.MutationID]; ok {
		return dispatch.ErrDuplicateMutation
	}
	if _, ok := tx.s.ledger[entry.MutationID]; ok {
		return dispatch.ErrDuplicateMutation
	}
	tx.ledger[entry.MutationID] = entry
	return nil
}

func (tx *memTx) CompleteLedger(_ context.Context, mutationID, resultRef string) error {
	e, ok := tx.ledger[mutationID]
	if !ok {
		return fmt.Errorf("ledger entry %s is not reserved", mutationID)
	}
	e.ResultRef = resultRef
	tx.ledger[mutationID] = e
	return nil
}

func (tx *memTx) CreateJob(_ context.Context, job *entity.Job) error {
	if _, ok := tx.job(job.ID); ok {
		return entity.ErrExists
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = tx.s.now().UTC()
	}
	tx.jobs[job.ID] = *job
	return nil
}

func (tx *memTx) GetJob(_ context.Context, id string) (*entity.Job, error) {
	j, ok := tx.job(id)
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &j, nil
}

func (tx *memTx) CreateInspection(_ context.Context, inspection *entity.Inspection) error {
	if _, ok := tx.inspection(inspection.ID); ok {
		return entity.ErrExists
	}
	inspection.Results = maps.Clone(inspection.Results)
	if inspection.Results == nil {
		inspection.Results = map[string]any{}
	}
	inspection.Version = 1
	inspection.UpdatedAt = tx.s.now().UTC()
	tx.inspections[inspection.ID] = *inspection
	return nil
}

func (tx *memTx) GetInspection(_ context.Context, id string) (*entity.Inspection, error) {
	i, ok := tx.inspection(id)
	if !ok {
		return nil, entity.ErrNotFound
	}
	i.Results = maps.Clone(i.Results)
	return &i, nil
}

func (tx *memTx) MergeInspectionResults(_ context.Context, id, jobID string, results map[string]any, actorID string) (*entity.Inspection, error) {
	cur, ok := tx.inspection(id)
	if !ok {
		cur = entity.Inspection{ID: id, JobID: jobID}
	}

	merged := maps.Clone(cur.Results)
	if merged == nil {
		merged = make(map[string]any, len(results))
	}
	maps.Copy(merged, results)

	cur.Results = merged
	cur.UpdatedBy = actorID
	cur.Version++
	cur.UpdatedAt = tx.s.now().UTC()
	tx.inspections[id] = cur

	out := cur
	out.Results = maps.Clone(merged)
	return &out, nil
}

func (tx *memTx) CreateEquipment(_ context.Context, equipment *entity.Equipment) error {
	if _, ok := tx.equipmentByID(equipment.ID); ok {
		return entity.ErrExists
	}
	equipment.Details = maps.Clone(equipment.Details)
	equipment.UpdatedAt = tx.s.now().UTC()
	tx.equipment[equipment.ID] = *equipment
	return nil
}

func (tx *memTx) GetEquipment(_ context.Context, id string) (*entity.Equipment, error) {
	e, ok := tx.equipmentByID(id)
	if !ok {
		return nil, entity.ErrNotFound
	}
	e.Details = maps.Clone(e.Details)
	return &e, nil
}

func (tx *memTx) UpdateEquipment(_ context.Context, equipment *entity.Equipment) error {
	if _, ok := tx.equipmentByID(equipment.ID); !ok {
		return entity.ErrNotFound
	}
	equipment.Details = maps.Clone(equipment.Details)
	equipment.UpdatedAt = tx.s.now().UTC()
	tx.equipment[equipment.ID] = *equipment
	return nil
}
