package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"fieldsync/internal/domain/mutation"
)

// Handler применяет мутации одного вида
type Handler interface {
	// Validate проверяет форму данных без обращения к хранилищу.
	Validate(payload json.RawMessage) error
	// Apply выполняет изменение внутри транзакции и возвращает ссылку на результат.
	Apply(ctx context.Context, tx Tx, actorID string, payload json.RawMessage) (string, error)
}

// FollowUpper - необязательный побочный эффект после фиксации транзакции.
// Его ошибка не меняет результат мутации.
type FollowUpper interface {
	FollowUp(ctx context.Context, actorID, resultRef string) error
}

// Key - пара ресурс/операция
type Key struct {
	Resource  mutation.Resource
	Operation mutation.Operation
}

func (k Key) String() string {
	return k.Resource.String() + "/" + k.Operation.String()
}

// KeyOf возвращает ключ обработчика для мутации.
func KeyOf(m mutation.Mutation) Key {
	return Key{Resource: m.Resource, Operation: m.Operation}
}

// Registry сопоставляет ключам обработчики
type Registry struct {
	mu       sync.RWMutex
	handlers map[Key]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Key]Handler)}
}

// Register добавляет обработчик. Повторная регистрация ключа - ошибка программиста.
func (r *Registry) Register(key Key, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[key]; ok {
		panic(fmt.Sprintf("dispatch: handler for %s already registered", key))
	}
	r.handlers[key] = h
}

func (r *Registry) Lookup(key Key) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[key]
	return h, ok
}

// Keys возвращает зарегистрированные ключи в стабильном порядке.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
