package session

import (
	"context"
	"errors"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrNoActor        = errors.New("actor not authenticated")
)

// Role - роль пользователя, выданная внешним провайдером идентификации
type Role string

const (
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
	RoleOffice     Role = "office"
	RoleCustomer   Role = "customer"
)

// Actor - аутентифицированный пользователь запроса
type Actor struct {
	ID   string
	Role Role
}

// CanDoFieldWork сообщает, может ли пользователь отправлять мутации и захватывать задачи.
func (a Actor) CanDoFieldWork() bool {
	return a.Role == RoleTechnician || a.Role == RoleAdmin
}

// IsAdmin сообщает, является ли пользователь администратором.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type contextKey struct{}

// WithActor кладет пользователя в контекст запроса.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom достает пользователя из контекста.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}
