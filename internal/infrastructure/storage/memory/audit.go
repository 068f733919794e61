package memory

import (
	"context"
	"sync"

	"fieldsync/internal/domain/audit"
)

type AuditRepository struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *AuditRepository) Append(_ context.Context, event *audit.Event, link func(prevHash string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := ""
	if len(r.events) > 0 {
		prev = r.events[len(r.events)-1].EventHash
	}
	link(prev)

	event.ID = int64(len(r.events) + 1)
	r.events = append(r.events, *event)
	return nil
}

// List возвращает события от новых к старым.
func (r *AuditRepository) List(_ context.Context, query audit.Query) ([]audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]audit.Event, 0)
	skipped := 0
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if query.ActorID != "" && e.ActorID != query.ActorID {
			continue
		}
		if query.Subject != "" && e.Subject != query.Subject {
			continue
		}
		if query.Kind != "" && e.Kind != query.Kind {
			continue
		}
		if skipped < query.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

// Events возвращает все события в порядке записи.
func (r *AuditRepository) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]audit.Event(nil), r.events...)
}
