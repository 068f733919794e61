package entity

import (
	"context"
)

// Store - доступ к бизнес-сущностям внутри одной транзакции диспетчера
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)

	CreateInspection(ctx context.Context, inspection *Inspection) error
	GetInspection(ctx context.Context, id string) (*Inspection, error)
	// MergeInspectionResults записывает переданные поля поверх сохраненных
	// и возвращает итоговое состояние.
	MergeInspectionResults(ctx context.Context, id, jobID string, results map[string]any, actorID string) (*Inspection, error)

	CreateEquipment(ctx context.Context, equipment *Equipment) error
	GetEquipment(ctx context.Context, id string) (*Equipment, error)
	UpdateEquipment(ctx context.Context, equipment *Equipment) error
}
