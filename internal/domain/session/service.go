package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/exp/slog"
)

// Repository ищет действующую сессию по хэшу токена
type Repository interface {
	Validate(ctx context.Context, tokenHash string) (Actor, error)
}

// Servicer проверяет токены, выданные внешним провайдером
type Servicer interface {
	Validate(ctx context.Context, token string) (Actor, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// HashToken возвращает hex sha256 токена. В хранилище лежат только хэши.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Service) Validate(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrInvalidSession
	}

	actor, err := s.repo.Validate(ctx, HashToken(token))
	if err != nil {
		s.log.Debug("session rejected", "error", err)
		return Actor{}, fmt.Errorf("validate session: %w", err)
	}

	return actor, nil
}
