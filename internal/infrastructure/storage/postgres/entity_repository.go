package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fieldsync/internal/domain/entity"
)

// entityStore реализует entity.Store поверх пула или транзакции
type entityStore struct {
	q querier
}

func (s entityStore) CreateJob(ctx context.Context, job *entity.Job) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO jobs (id, customer, site_address, scheduled_for, created_by, created_at)
         VALUES ($1, $2, $3, $4, $5, NOW())
         RETURNING created_at`,
		job.ID, job.Customer, job.SiteAddress, job.ScheduledFor, job.CreatedBy,
	).Scan(&job.CreatedAt)
	if isUniqueViolation(err) {
		return entity.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s entityStore) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	var j entity.Job
	err := s.q.QueryRow(ctx,
		`SELECT id, customer, site_address, scheduled_for, created_by, created_at
         FROM jobs WHERE id = $1`,
		id,
	).Scan(&j.ID, &j.Customer, &j.SiteAddress, &j.ScheduledFor, &j.CreatedBy, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return &j, nil
}

func (s entityStore) CreateInspection(ctx context.Context, in *entity.Inspection) error {
	if in.Results == nil {
		in.Results = map[string]any{}
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO inspections (id, job_id, results, updated_by, version, updated_at)
         VALUES ($1, $2, $3, $4, 1, NOW())
         RETURNING version, updated_at`,
		in.ID, in.JobID, in.Results, in.UpdatedBy,
	).Scan(&in.Version, &in.UpdatedAt)
	if isUniqueViolation(err) {
		return entity.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	return nil
}

func (s entityStore) GetInspection(ctx context.Context, id string) (*entity.Inspection, error) {
	var in entity.Inspection
	err := s.q.QueryRow(ctx,
		`SELECT id, job_id, results, updated_by, version, updated_at
         FROM inspections WHERE id = $1`,
		id,
	).Scan(&in.ID, &in.JobID, &in.Results, &in.UpdatedBy, &in.Version, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select inspection: %w", err)
	}
	return &in, nil
}

// MergeInspectionResults сливает результаты оператором jsonb ||: переданные
// ключи перезаписываются, остальные сохраняются.
func (s entityStore) MergeInspectionResults(ctx context.Context, id, jobID string, results map[string]any, actorID string) (*entity.Inspection, error) {
	var in entity.Inspection
	err := s.q.QueryRow(ctx,
		`INSERT INTO inspections (id, job_id, results, updated_by, version, updated_at)
         VALUES ($1, $2, $3, $4, 1, NOW())
         ON CONFLICT (id) DO UPDATE SET
             results = inspections.results || EXCLUDED.results,
             updated_by = EXCLUDED.updated_by,
             version = inspections.version + 1,
             updated_at = EXCLUDED.updated_at
         RETURNING id, job_id, results, updated_by, version, updated_at`,
		id, jobID, results, actorID,
	).Scan(&in.ID, &in.JobID, &in.Results, &in.UpdatedBy, &in.Version, &in.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("merge inspection: %w", err)
	}
	return &in, nil
}

func (s entityStore) CreateEquipment(ctx context.Context, eq *entity.Equipment) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO equipment (id, job_id, kind, serial, details, updated_by, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, NOW())
         RETURNING updated_at`,
		eq.ID, eq.JobID, eq.Kind, eq.Serial, eq.Details, eq.UpdatedBy,
	).Scan(&eq.UpdatedAt)
	if isUniqueViolation(err) {
		return entity.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	return nil
}

func (s entityStore) GetEquipment(ctx context.Context, id string) (*entity.Equipment, error) {
	var eq entity.Equipment
	err := s.q.QueryRow(ctx,
		`SELECT id, job_id, kind, serial, details, updated_by, updated_at
         FROM equipment WHERE id = $1`,
		id,
	).Scan(&eq.ID, &eq.JobID, &eq.Kind, &eq.Serial, &eq.Details, &eq.UpdatedBy, &eq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select equipment: %w", err)
	}
	return &eq, nil
}

func (s entityStore) UpdateEquipment(ctx context.Context, eq *entity.Equipment) error {
	err := s.q.QueryRow(ctx,
		`UPDATE equipment
         SET job_id = $2, kind = $3, serial = $4, details = $5, updated_by = $6, updated_at = NOW()
         WHERE id = $1
         RETURNING updated_at`,
		eq.ID, eq.JobID, eq.Kind, eq.Serial, eq.Details, eq.UpdatedBy,
	).Scan(&eq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update equipment: %w", err)
	}
	return nil
}
