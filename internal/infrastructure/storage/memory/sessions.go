package memory

import (
	"context"
	"sync"

	"fieldsync/internal/domain/session"
)

type SessionRepository struct {
	mu     sync.RWMutex
	actors map[string]session.Actor
}

// Add регистрирует токен, выданный внешним провайдером.
func (r *SessionRepository) Add(token string, actor session.Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actors[session.HashToken(token)] = actor
}

func (r *SessionRepository) Validate(_ context.Context, tokenHash string) (session.Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actors[tokenHash]
	if !ok {
		return session.Actor{}, session.ErrInvalidSession
	}
	return a, nil
}
