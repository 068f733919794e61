package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"fieldsync/internal/domain/entity"
	"fieldsync/internal/domain/mutation"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Reader дает доступ на чтение к зафиксированным сущностям
type Reader interface {
	Read(ctx context.Context, fn func(store entity.Store) error) error
}

// Backup - внешнее хранилище снимков
type Backup interface {
	Put(ctx context.Context, key string, data []byte) error
}

// decode разбирает payload строго: неизвестные поля и хвост после объекта
// считаются ошибкой формата.
func decode[T any](payload json.RawMessage) (*T, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var v T
	if err := dec.Decode(&v); err != nil {
		return nil, mutation.Validation(fmt.Errorf("decode payload: %w", err))
	}
	if dec.More() {
		return nil, mutation.Validation(errors.New("decode payload: unexpected data after object"))
	}
	if err := validate.Struct(&v); err != nil {
		return nil, mutation.Validation(fmt.Errorf("invalid payload: %w", err))
	}
	return &v, nil
}

// requireJob возвращает временную ошибку, если выезд еще не создан:
// родительская мутация может прийти позже из другой очереди.
func requireJob(ctx context.Context, store entity.Store, jobID string) error {
	_, err := store.GetJob(ctx, jobID)
	if errors.Is(err, entity.ErrNotFound) {
		return mutation.Transient(fmt.Errorf("job %s not found", jobID))
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	return nil
}

// conflict превращает ErrExists в ошибку формата: повтор ее не исправит.
func conflict(err error, what, id string) error {
	if errors.Is(err, entity.ErrExists) {
		return mutation.Validation(fmt.Errorf("%s %s already exists", what, id))
	}
	return fmt.Errorf("create %s: %w", what, err)
}
