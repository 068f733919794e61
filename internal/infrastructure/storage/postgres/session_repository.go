package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/session"
)

type SessionRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewSessionRepository(db *Storage, log *slog.Logger) *SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

// Validate ищет действующую сессию. Сессии заводит внешний провайдер.
func (r *SessionRepository) Validate(ctx context.Context, tokenHash string) (session.Actor, error) {
	var a session.Actor
	err := r.db.Pool().QueryRow(ctx,
		`SELECT a.id, a.role
         FROM sessions s JOIN actors a ON a.id = s.actor_id
         WHERE s.token_hash = decode($1, 'hex') AND s.expires_at > NOW()`,
		tokenHash).Scan(&a.ID, &a.Role)

	if errors.Is(err, pgx.ErrNoRows) {
		return session.Actor{}, session.ErrInvalidSession
	}
	if err != nil {
		return session.Actor{}, fmt.Errorf("select session: %w", err)
	}
	return a, nil
}
