package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/mutation"
)

// AgentConfig - параметры очереди
type AgentConfig struct {
	ActorID       string
	BatchSize     int
	MaxAttempts   int
	SyncTimeout   time.Duration
	SyncInterval  time.Duration
	ProbeInterval time.Duration
	Retention     time.Duration
}

// Agent ведет локальную очередь мутаций и отправляет ее на сервер.
// Enqueue никогда не обращается к сети.
type Agent struct {
	store     Storage
	transport Transport
	log       *slog.Logger
	config    AgentConfig
	now       func() time.Time

	flushMu sync.Mutex
	trigger chan struct{}
}

func NewAgent(store Storage, transport Transport, log *slog.Logger, config *AgentConfig) *Agent {
	cfg := AgentConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 30 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}

	return &Agent{
		store:     store,
		transport: transport,
		log:       log.With("component", "sync_agent", "actor_id", cfg.ActorID),
		config:    cfg,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
}

// Enqueue сохраняет мутацию как PENDING и возвращает ее ID. Мутация
// считается принятой только после фиксации в хранилище.
func (a *Agent) Enqueue(ctx context.Context, resource mutation.Resource, op mutation.Operation, payload json.RawMessage) (string, error) {
	if a.config.ActorID == "" {
		return "", ErrNoActor
	}
	if err := resource.Validate(); err != nil {
		return "", err
	}
	if err := op.Validate(); err != nil {
		return "", err
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return "", ErrInvalidPayload
	}

	e := &Entry{
		Mutation: mutation.Mutation{
			ID:        uuid.NewString(),
			Resource:  resource,
			Operation: op,
			Payload:   payload,
			Status:    mutation.StatusPending,
			CreatedAt: a.now().UTC(),
		},
		ActorID: a.config.ActorID,
	}
	if err := a.store.Insert(ctx, e); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	a.log.Debug("mutation enqueued", "mutation_id", e.ID, "action", e.Action(), "seq", e.Seq)
	return e.ID, nil
}

// Flush отправляет один пакет. Параллельные вызовы выполняются по очереди.
func (a *Agent) Flush(ctx context.Context) (*FlushResult, error) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	result := &FlushResult{}

	batch, err := a.store.NextBatch(ctx, a.config.ActorID, a.config.MaxAttempts, a.config.BatchSize, a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("select batch: %w", err)
	}
	if len(batch) == 0 {
		a.prune(ctx, result)
		return result, nil
	}
	result.Submitted = len(batch)

	ids := make([]string, len(batch))
	muts := make([]mutation.Mutation, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
		muts[i] = e.Mutation
	}

	// при отмене ctx мутации все равно нужно вернуть в очередь
	storeCtx := context.WithoutCancel(ctx)

	submitCtx, cancel := context.WithTimeout(ctx, a.config.SyncTimeout)
	outcomes, err := a.transport.SubmitBatch(submitCtx, muts)
	cancel()

	if errors.Is(err, ErrForbidden) {
		a.log.Warn("server rejected batch for this role", "size", len(batch))
		rejected := make([]mutation.Outcome, len(batch))
		for i, id := range ids {
			rejected[i] = mutation.Failed(id, mutation.ErrUnauthorized)
		}
		applied, applyErr := a.store.ApplyOutcomes(storeCtx, rejected, a.config.MaxAttempts, a.now().UTC())
		if applyErr != nil {
			return nil, fmt.Errorf("apply outcomes: %w", applyErr)
		}
		result.Failed = applied.Failed
		return result, err
	}
	if err != nil {
		if reqErr := a.store.Requeue(storeCtx, ids); reqErr != nil {
			return nil, errors.Join(err, fmt.Errorf("requeue: %w", reqErr))
		}
		result.Requeued = len(ids)
		a.log.Info("flush failed, mutations stay queued", "size", len(ids), "error", err)
		if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrOffline) {
			return result, err
		}
		return result, fmt.Errorf("%w: %v", ErrOffline, err)
	}

	applied, err := a.store.ApplyOutcomes(storeCtx, outcomes, a.config.MaxAttempts, a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("apply outcomes: %w", err)
	}
	result.Completed = applied.Completed
	result.Failed = applied.Failed
	result.Requeued = applied.Requeued

	if missing := missingOutcomes(ids, outcomes); len(missing) > 0 {
		a.log.Warn("server returned no outcome for some mutations", "count", len(missing))
		if err := a.store.Requeue(storeCtx, missing); err != nil {
			return nil, fmt.Errorf("requeue: %w", err)
		}
		result.Requeued += len(missing)
	}

	a.prune(storeCtx, result)

	a.log.Info("flush finished",
		"submitted", result.Submitted,
		"completed", result.Completed,
		"failed", result.Failed,
		"requeued", result.Requeued,
	)
	return result, nil
}

// Drain повторяет Flush, пока пакеты уходят полными. Останавливается на
// ошибке, на неполном пакете и когда часть мутаций вернулась в очередь.
func (a *Agent) Drain(ctx context.Context) (*FlushResult, error) {
	total := &FlushResult{}
	for {
		res, err := a.Flush(ctx)
		if res != nil {
			total.Submitted += res.Submitted
			total.Completed += res.Completed
			total.Failed += res.Failed
			total.Requeued += res.Requeued
			total.Pruned += res.Pruned
		}
		if err != nil {
			return total, err
		}
		if res.Submitted < a.config.BatchSize || res.Requeued > 0 || ctx.Err() != nil {
			return total, nil
		}
	}
}

func missingOutcomes(ids []string, outcomes []mutation.Outcome) []string {
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		seen[o.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func (a *Agent) prune(ctx context.Context, result *FlushResult) {
	n, err := a.store.Prune(ctx, a.now().UTC().Add(-a.config.Retention))
	if err != nil {
		a.log.Warn("prune failed", "error", err)
		return
	}
	result.Pruned = int(n)
}

// Recover возвращает в очередь мутации, отправка которых прервалась
// падением процесса. Повторная отправка безопасна благодаря реестру сервера.
func (a *Agent) Recover(ctx context.Context) (int, error) {
	n, err := a.store.RecoverSubmitted(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	if n > 0 {
		a.log.Info("recovered interrupted mutations", "count", n)
	}
	return n, nil
}

func (a *Agent) Status(ctx context.Context) (Counts, error) {
	return a.store.Counts(ctx, a.config.ActorID)
}

// Failed возвращает окончательно неуспешные мутации.
func (a *Agent) Failed(ctx context.Context) ([]Entry, error) {
	return a.store.ListByStatus(ctx, a.config.ActorID, mutation.StatusFailed, 0)
}

// Retry возвращает FAILED мутацию в очередь по запросу пользователя.
func (a *Agent) Retry(ctx context.Context, id string) error {
	if err := a.store.Retry(ctx, id); err != nil {
		return err
	}
	a.Trigger()
	return nil
}

// Trigger просит фоновый цикл выполнить синхронизацию.
func (a *Agent) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Run - фоновый цикл: синхронизация при появлении связи, по таймеру и по
// Trigger. После неудачи следующая попытка откладывается экспоненциально.
func (a *Agent) Run(ctx context.Context) error {
	if _, err := a.Recover(ctx); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = a.config.SyncInterval

	probe := time.NewTicker(a.config.ProbeInterval)
	defer probe.Stop()
	interval := time.NewTicker(a.config.SyncInterval)
	defer interval.Stop()

	var retry *time.Timer
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	online := a.transport.HealthCheck(ctx) == nil

	flush := func(reason string) {
		_, err := a.Drain(ctx)
		if err == nil {
			bo.Reset()
			retryC = nil
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrOffline) {
			online = false
		}
		delay := bo.NextBackOff()
		a.log.Info("sync failed, backing off", "reason", reason, "delay", delay, "error", err)
		if retry != nil {
			retry.Stop()
		}
		retry = time.NewTimer(delay)
		retryC = retry.C
	}

	if online {
		flush("startup")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-probe.C:
			reachable := a.transport.HealthCheck(ctx) == nil
			wasOnline := online
			online = reachable
			if reachable && !wasOnline {
				a.log.Info("connection restored")
				flush("reconnect")
			}
		case <-interval.C:
			if online {
				flush("interval")
			}
		case <-a.trigger:
			flush("trigger")
		case <-retryC:
			retryC = nil
			flush("retry")
		}
	}
}

// Claim передает запрос захвата задачи на сервер.
func (a *Agent) Claim(ctx context.Context, taskID string) (claim.Result, error) {
	return a.transport.Claim(ctx, taskID)
}

func (a *Agent) Release(ctx context.Context, taskID string) (bool, error) {
	return a.transport.Release(ctx, taskID)
}

func (a *Agent) GetClaim(ctx context.Context, taskID string) (*ClaimState, error) {
	return a.transport.GetClaim(ctx, taskID)
}
