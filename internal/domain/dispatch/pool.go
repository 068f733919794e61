package dispatch

import (
	"context"
	"sync"

	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/mutation"
	"fieldsync/internal/observability"
)

// Processor - то, что пул вызывает для каждого пакета
type Processor interface {
	Process(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error)
}

type result struct {
	outcomes []mutation.Outcome
	err      error
}

type job struct {
	ctx   context.Context
	batch mutation.Batch
	reply chan result
}

// Pool распределяет пакеты по воркерам. Пакеты разных пользователей
// обрабатываются параллельно, пакеты одного пользователя - по очереди.
type Pool struct {
	proc    Processor
	metrics *observability.Metrics
	log     *slog.Logger
	workers int

	jobs  chan job
	locks *keyedMutex
	wg    sync.WaitGroup

	mu       sync.RWMutex
	started  bool
	stopped  bool
	stopOnce sync.Once
}

func NewPool(proc Processor, metrics *observability.Metrics, log *slog.Logger, config *ServiceConfig) *Pool {
	workers, queue := 4, 64
	if config != nil {
		if config.Workers > 0 {
			workers = config.Workers
		}
		if config.QueueSize > 0 {
			queue = config.QueueSize
		}
	}

	return &Pool{
		proc:    proc,
		metrics: metrics,
		log:     log.With("component", "dispatch_pool"),
		workers: workers,
		jobs:    make(chan job, queue),
		locks:   newKeyedMutex(),
	}
}

// Start запускает воркеров. Отмена ctx останавливает пул с дообработкой очереди.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("dispatch pool started", "workers", p.workers, "queue", cap(p.jobs))

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
}

// Submit ставит пакет в очередь и ждет результата. При заполненной
// очереди сразу возвращает ErrPoolBusy.
func (p *Pool) Submit(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error) {
	reply := make(chan result, 1)

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}
	select {
	case p.jobs <- job{ctx: ctx, batch: batch, reply: reply}:
		p.metrics.QueueDepth(len(p.jobs))
	default:
		p.mu.RUnlock()
		p.metrics.BatchRejected()
		p.log.Warn("dispatch queue full", "actor_id", batch.ActorID)
		return nil, ErrPoolBusy
	}
	p.mu.RUnlock()

	select {
	case r := <-reply:
		return r.outcomes, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop перестает принимать пакеты и ждет обработки уже принятых.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
		p.log.Info("dispatch pool stopped")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.jobs {
		p.metrics.QueueDepth(len(p.jobs))

		if err := j.ctx.Err(); err != nil {
			j.reply <- result{err: err}
			continue
		}

		p.metrics.WorkerBusy(1)
		unlock := p.locks.Lock(j.batch.ActorID)
		outcomes, err := p.proc.Process(j.ctx, j.batch)
		unlock()
		p.metrics.WorkerBusy(-1)

		if err != nil {
			p.log.Debug("batch rejected", "worker", id, "actor_id", j.batch.ActorID, "error", err)
		}
		j.reply <- result{outcomes: outcomes, err: err}
	}
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex - мьютекс на каждый ключ, записи удаляются после освобождения
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
