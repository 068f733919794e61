package audit

import (
	"context"
	"time"

	"golang.org/x/exp/slog"
)

// Recorder - то, что нужно диспетчеру и менеджеру захватов от журнала
type Recorder interface {
	Record(ctx context.Context, event Event)
}

type Servicer interface {
	Recorder
	List(ctx context.Context, query Query) ([]Event, error)
}

// Service ведет журнал аудита. Порядок цепочки хэшей обеспечивает
// хранилище внутри Append.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With("component", "audit"),
		now:  time.Now,
	}
}

// Record дописывает событие. Ошибки журнала не влияют на вызывающего.
func (s *Service) Record(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)

	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	// TIMESTAMPTZ хранит микросекунды, хэш должен сойтись после чтения.
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	event.PayloadHash = PayloadHash(event.Details)

	err := s.repo.Append(ctx, &event, func(prev string) {
		event.PrevHash = prev
		event.EventHash = ComputeHash(event)
	})
	if err != nil {
		s.log.Error("audit append failed",
			"kind", event.Kind,
			"subject", event.Subject,
			"error", err,
		)
	}
}

func (s *Service) List(ctx context.Context, query Query) ([]Event, error) {
	if query.Limit <= 0 || query.Limit > 500 {
		query.Limit = 50
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	return s.repo.List(ctx, query)
}
