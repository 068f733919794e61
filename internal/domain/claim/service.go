package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/session"
	"fieldsync/internal/observability"
)

type Servicer interface {
	Claim(ctx context.Context, actor session.Actor, taskID string) (Result, error)
	Release(ctx context.Context, actor session.Actor, taskID string) (bool, error)
	Get(ctx context.Context, taskID string) (*Claim, error)
}

// Service выдает аренды задач. Конфликт захвата - не ошибка, а Result{Claimed: false}.
type Service struct {
	repo    Repository
	audit   audit.Recorder
	metrics *observability.Metrics
	clock   Clock
	log     *slog.Logger
	config  *ServiceConfig
}

func NewService(repo Repository, auditor audit.Recorder, metrics *observability.Metrics, clock Clock, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil || config.LeaseDuration <= 0 {
		config = &ServiceConfig{LeaseDuration: 5 * time.Minute}
	}
	if clock == nil {
		clock = ClockFunc(time.Now)
	}

	return &Service{
		repo:    repo,
		audit:   auditor,
		metrics: metrics,
		clock:   clock,
		log:     log.With("component", "claim"),
		config:  config,
	}
}

func authorize(actor session.Actor) error {
	if actor.ID == "" {
		return ErrUnauthenticated
	}
	if !actor.CanDoFieldWork() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) Claim(ctx context.Context, actor session.Actor, taskID string) (Result, error) {
	if err := authorize(actor); err != nil {
		return Result{}, err
	}
	if taskID == "" {
		return Result{}, ErrInvalidTask
	}

	now := s.clock.Now().UTC()
	acq, err := s.repo.TryAcquire(ctx, taskID, actor.ID, now, now.Add(s.config.LeaseDuration))
	if err != nil {
		return Result{}, fmt.Errorf("acquire claim: %w", err)
	}

	kind := acquisitionKind(acq, actor.ID, now)
	s.metrics.ClaimResult(string(kind))

	details := map[string]any{"expires_at": acq.Current.ExpiresAt}
	if acq.Previous != nil && acq.Previous.HolderID != actor.ID {
		details["previous_holder"] = acq.Previous.HolderID
	}
	if !acq.Acquired {
		details["held_by"] = acq.Current.HolderID
	}
	s.audit.Record(ctx, audit.Event{
		Kind:    kind,
		ActorID: actor.ID,
		Subject: taskID,
		Details: details,
	})

	s.log.Debug("claim attempt",
		"task_id", taskID,
		"actor_id", actor.ID,
		"result", kind,
		"holder", acq.Current.HolderID,
	)

	return Result{
		Claimed:   acq.Acquired,
		ExpiresAt: acq.Current.ExpiresAt,
		ClaimedBy: acq.Current.HolderID,
	}, nil
}

func acquisitionKind(acq Acquisition, actorID string, now time.Time) audit.Kind {
	switch {
	case !acq.Acquired:
		return audit.KindClaimRejected
	case acq.Previous == nil:
		return audit.KindClaimAcquired
	case acq.Previous.HolderID == actorID && acq.Previous.Active(now):
		return audit.KindClaimRenewed
	case acq.Previous.HolderID != actorID:
		return audit.KindClaimExpiredTakeover
	default:
		return audit.KindClaimAcquired
	}
}

// Release всегда возвращает true для авторизованного пользователя: снятие
// чужой или уже истекшей аренды ничего не меняет.
func (s *Service) Release(ctx context.Context, actor session.Actor, taskID string) (bool, error) {
	if err := authorize(actor); err != nil {
		return false, err
	}
	if taskID == "" {
		return false, ErrInvalidTask
	}

	released, err := s.repo.Release(ctx, taskID, actor.ID)
	if err != nil {
		return false, fmt.Errorf("release claim: %w", err)
	}

	if released {
		s.metrics.ClaimResult(string(audit.KindClaimReleased))
		s.audit.Record(ctx, audit.Event{
			Kind:    audit.KindClaimReleased,
			ActorID: actor.ID,
			Subject: taskID,
		})
	} else {
		s.log.Debug("release of claim not held", "task_id", taskID, "actor_id", actor.ID)
	}

	return true, nil
}

// Get возвращает действующую аренду или ErrNotFound.
func (s *Service) Get(ctx context.Context, taskID string) (*Claim, error) {
	c, err := s.repo.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if !c.Active(s.clock.Now()) {
		return nil, ErrNotFound
	}
	return c, nil
}
