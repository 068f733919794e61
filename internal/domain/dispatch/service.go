package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/mutation"
	"fieldsync/internal/observability"
)

// Servicer применяет пакеты мутаций
type Servicer interface {
	Process(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error)
	// Lookup возвращает запись журнала идемпотентности.
	Lookup(ctx context.Context, mutationID string) (*LedgerEntry, error)
}

// Service применяет каждую мутацию не более одного раза. Мутации пакета
// обрабатываются строго по порядку, ошибка одной не затрагивает соседние.
type Service struct {
	repo     Repository
	registry *Registry
	audit    audit.Recorder
	metrics  *observability.Metrics
	log      *slog.Logger
	config   *ServiceConfig
	tracer   trace.Tracer
	now      func() time.Time

	followUps sync.WaitGroup
}

func NewService(repo Repository, registry *Registry, auditor audit.Recorder, metrics *observability.Metrics, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{
			Workers:         4,
			QueueSize:       64,
			FollowUpTimeout: 30 * time.Second,
		}
	}
	if config.FollowUpTimeout <= 0 {
		config.FollowUpTimeout = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		registry: registry,
		audit:    auditor,
		metrics:  metrics,
		log:      log.With("component", "dispatch"),
		config:   config,
		tracer:   observability.Tracer("dispatch"),
		now:      time.Now,
	}
}

// Process возвращает по одному результату на каждую мутацию в исходном порядке.
// Ошибка возвращается только для некорректного пакета.
func (s *Service) Process(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error) {
	if batch.ActorID == "" {
		return nil, ErrEmptyActor
	}

	ctx, span := s.tracer.Start(ctx, "dispatch.Process", trace.WithAttributes(
		attribute.String("actor.id", batch.ActorID),
		attribute.Int("batch.size", len(batch.Mutations)),
	))
	defer span.End()

	start := s.now()
	outcomes := make([]mutation.Outcome, 0, len(batch.Mutations))
	for _, m := range batch.Mutations {
		out := s.processOne(ctx, batch.ActorID, m)
		outcomes = append(outcomes, out)
		s.metrics.MutationProcessed(m.Resource.String(), m.Operation.String(), string(out.Status), string(out.ErrorKind))
	}
	s.metrics.BatchProcessed(len(batch.Mutations), s.now().Sub(start))

	return outcomes, nil
}

func (s *Service) Lookup(ctx context.Context, mutationID string) (*LedgerEntry, error) {
	entry, err := s.repo.GetLedger(ctx, mutationID)
	if err != nil {
		return nil, fmt.Errorf("lookup ledger: %w", err)
	}
	return entry, nil
}

// Wait блокируется до завершения запущенных побочных эффектов.
func (s *Service) Wait() {
	s.followUps.Wait()
}

func (s *Service) processOne(ctx context.Context, actorID string, m mutation.Mutation) mutation.Outcome {
	ctx, span := s.tracer.Start(ctx, "dispatch.mutation", trace.WithAttributes(
		attribute.String("mutation.id", m.ID),
		attribute.String("mutation.action", m.Action()),
	))
	defer span.End()

	log := s.log.With("mutation_id", m.ID, "action", m.Action(), "actor_id", actorID)

	if entry, ok := s.applied(ctx, log, m.ID); ok {
		s.metrics.MutationDuplicate()
		log.Debug("mutation already applied", "result_ref", entry.ResultRef)
		return mutation.Completed(m.ID, entry.ResultRef)
	}

	key := KeyOf(m)
	handler, ok := s.registry.Lookup(key)
	if !ok {
		log.Warn("no handler for mutation")
		return s.fail(ctx, actorID, m, mutation.UnknownAction(key.String()))
	}

	if err := handler.Validate(m.Payload); err != nil {
		if mutation.KindOf(err) == mutation.KindHandler {
			err = mutation.Validation(err)
		}
		log.Info("mutation rejected", "error", err)
		return s.fail(ctx, actorID, m, err)
	}

	var resultRef string
	err := s.repo.Do(ctx, func(tx Tx) error {
		// Ключ идемпотентности занимается до обработчика.
		if err := tx.ReserveLedger(ctx, LedgerEntry{
			MutationID: m.ID,
			ActorID:    actorID,
			Resource:   m.Resource,
			Operation:  m.Operation,
			AppliedAt:  s.now().UTC(),
		}); err != nil {
			return err
		}

		ref, err := handler.Apply(ctx, tx, actorID, m.Payload)
		if err != nil {
			return err
		}
		resultRef = ref

		return tx.CompleteLedger(ctx, m.ID, ref)
	})

	if errors.Is(err, ErrDuplicateMutation) {
		// Параллельная отправка той же мутации успела зафиксироваться первой.
		entry, lerr := s.repo.GetLedger(ctx, m.ID)
		if lerr == nil {
			s.metrics.MutationDuplicate()
			log.Debug("mutation applied concurrently", "result_ref", entry.ResultRef)
			return mutation.Completed(m.ID, entry.ResultRef)
		}
		err = mutation.Transient(lerr)
	}
	if err != nil {
		observability.RecordError(span, err)
		log.Error("mutation failed", "error", err)
		return s.fail(ctx, actorID, m, err)
	}

	log.Debug("mutation applied", "result_ref", resultRef)
	s.audit.Record(ctx, audit.Event{
		Kind:    audit.KindMutationApplied,
		ActorID: actorID,
		Subject: m.ID,
		Details: map[string]any{
			"resource":   m.Resource,
			"operation":  m.Operation,
			"result_ref": resultRef,
		},
	})

	if f, ok := handler.(FollowUpper); ok {
		s.followUp(ctx, log, f, actorID, m, resultRef)
	}

	return mutation.Completed(m.ID, resultRef)
}

func (s *Service) applied(ctx context.Context, log *slog.Logger, id string) (*LedgerEntry, bool) {
	entry, err := s.repo.GetLedger(ctx, id)
	if err == nil {
		return entry, true
	}
	if !errors.Is(err, ErrNotApplied) {
		// Продолжаем: повторное применение отсечет первичный ключ журнала.
		log.Warn("ledger lookup failed", "error", err)
	}
	return nil, false
}

func (s *Service) fail(ctx context.Context, actorID string, m mutation.Mutation, err error) mutation.Outcome {
	out := mutation.Failed(m.ID, err)
	s.audit.Record(ctx, audit.Event{
		Kind:    audit.KindMutationFailed,
		ActorID: actorID,
		Subject: m.ID,
		Details: map[string]any{
			"resource":   m.Resource,
			"operation":  m.Operation,
			"error_kind": out.ErrorKind,
			"reason":     out.ErrorReason,
		},
	})
	return out
}

func (s *Service) followUp(ctx context.Context, log *slog.Logger, f FollowUpper, actorID string, m mutation.Mutation, resultRef string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FollowUpTimeout)

	s.followUps.Add(1)
	go func() {
		defer s.followUps.Done()
		defer cancel()

		if err := f.FollowUp(ctx, actorID, resultRef); err != nil {
			s.metrics.FollowUpFailed(m.Resource.String())
			log.Warn("follow-up failed", "result_ref", resultRef, "error", err)
		}
	}()
}
