package client

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/entity"
	"fieldsync/internal/domain/mutation"
	"fieldsync/internal/domain/resource"
	"fieldsync/internal/infrastructure/storage/memory"
)

// fakeTransport отправляет пакеты прямо в диспетчер поверх хранилища в памяти
type fakeTransport struct {
	service *dispatch.Service
	actorID string

	offline   atomic.Bool
	err       atomic.Value // error
	outcomeFn func([]mutation.Outcome) []mutation.Outcome

	mu        sync.Mutex
	submitted map[string]int
}

func newFakeTransport(service *dispatch.Service, actorID string) *fakeTransport {
	return &fakeTransport{service: service, actorID: actorID, submitted: make(map[string]int)}
}

func (f *fakeTransport) SubmitBatch(ctx context.Context, muts []mutation.Mutation) ([]mutation.Outcome, error) {
	if f.offline.Load() {
		return nil, ErrOffline
	}
	if err, ok := f.err.Load().(error); ok && err != nil {
		return nil, err
	}

	f.mu.Lock()
	for _, m := range muts {
		f.submitted[m.ID]++
	}
	f.mu.Unlock()

	out, err := f.service.Process(ctx, mutation.Batch{ActorID: f.actorID, Mutations: muts})
	if err != nil {
		return nil, err
	}
	if f.outcomeFn != nil {
		out = f.outcomeFn(out)
	}
	return out, nil
}

func (f *fakeTransport) HealthCheck(context.Context) error {
	if f.offline.Load() {
		return ErrOffline
	}
	return nil
}

func (f *fakeTransport) Claim(context.Context, string) (claim.Result, error) {
	return claim.Result{Claimed: true, ClaimedBy: f.actorID}, nil
}

func (f *fakeTransport) Release(context.Context, string) (bool, error) {
	return true, nil
}

func (f *fakeTransport) GetClaim(context.Context, string) (*ClaimState, error) {
	return &ClaimState{}, nil
}

func (f *fakeTransport) timesSubmitted(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[id]
}

type agentEnv struct {
	server    *memory.Store
	transport *fakeTransport
	dbPath    string
	store     *SQLiteStorage
	agent     *Agent
}

func newAgentEnv(t *testing.T, cfg *AgentConfig) *agentEnv {
	t.Helper()

	server := memory.New()
	registry := dispatch.NewRegistry()
	resource.Register(registry, server, nil)
	service := dispatch.NewService(server, registry, audit.NewService(server.Audit(), slog.Default()), nil, slog.Default(), nil)
	t.Cleanup(service.Wait)

	if cfg == nil {
		cfg = &AgentConfig{}
	}
	cfg.ActorID = "tech-1"

	dbPath := filepath.Join(t.TempDir(), "queue.db")
	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	transport := newFakeTransport(service, cfg.ActorID)
	return &agentEnv{
		server:    server,
		transport: transport,
		dbPath:    dbPath,
		store:     store,
		agent:     NewAgent(store, transport, slog.Default(), cfg),
	}
}

func (e *agentEnv) enqueue(t *testing.T, res mutation.Resource, op mutation.Operation, payload string) string {
	t.Helper()
	id, err := e.agent.Enqueue(context.Background(), res, op, json.RawMessage(payload))
	require.NoError(t, err)
	return id
}

func TestAgent_EnqueueValidation(t *testing.T) {
	e := newAgentEnv(t, nil)
	ctx := context.Background()

	_, err := e.agent.Enqueue(ctx, "invoice", mutation.OpCreate, json.RawMessage(`{}`))
	assert.Error(t, err)
	_, err = e.agent.Enqueue(ctx, mutation.ResourceJob, "DELETE", json.RawMessage(`{}`))
	assert.Error(t, err)
	_, err = e.agent.Enqueue(ctx, mutation.ResourceJob, mutation.OpCreate, json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	noActor := NewAgent(e.store, e.transport, slog.Default(), nil)
	_, err = noActor.Enqueue(ctx, mutation.ResourceJob, mutation.OpCreate, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNoActor)

	// Enqueue не зависит от сети
	e.transport.offline.Store(true)
	id := e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"Main st. 1"}`)
	got, err := e.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mutation.StatusPending, got.Status)
}

// Офлайн серия: технику без связи создают выезд, осмотр и дважды
// дополняют результаты. После появления связи все применяется по порядку.
func TestAgent_OfflineBurst(t *testing.T) {
	e := newAgentEnv(t, nil)
	ctx := context.Background()
	e.transport.offline.Store(true)

	e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"job_id":"j-1","customer":"ACME","site_address":"Main st. 1"}`)
	e.enqueue(t, mutation.ResourceInspection, mutation.OpCreate, `{"inspection_id":"i-1","job_id":"j-1"}`)
	e.enqueue(t, mutation.ResourceInspection, mutation.OpUpdate, `{"inspection_id":"i-1","job_id":"j-1","results":{"pressure":"ok"}}`)
	e.enqueue(t, mutation.ResourceInspection, mutation.OpUpdate, `{"inspection_id":"i-1","job_id":"j-1","results":{"valve":"replaced"}}`)

	res, err := e.agent.Flush(ctx)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 4, res.Requeued)

	counts, err := e.agent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Pending: 4}, counts)

	pending, err := e.store.ListByStatus(ctx, "tech-1", mutation.StatusPending, 0)
	require.NoError(t, err)
	for _, p := range pending {
		assert.Zero(t, p.AttemptCount, "offline time does not consume attempts")
	}

	e.transport.offline.Store(false)
	res, err = e.agent.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Submitted)
	assert.Equal(t, 4, res.Completed)

	counts, err = e.agent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Synced: 4}, counts)

	var insp *entity.Inspection
	require.NoError(t, e.server.Read(ctx, func(s entity.Store) error {
		var err error
		insp, err = s.GetInspection(ctx, "i-1")
		return err
	}))
	assert.Equal(t, map[string]any{"pressure": "ok", "valve": "replaced"}, insp.Results)
	assert.Equal(t, 4, e.server.LedgerSize())
}

// Процесс упал после того, как сервер применил пакет, но до записи
// результатов. После перезапуска мутации отправляются снова и не
// применяются дважды.
func TestAgent_RetryAfterCrash(t *testing.T) {
	e := newAgentEnv(t, nil)
	ctx := context.Background()

	id := e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"job_id":"j-1","customer":"ACME","site_address":"Main st. 1"}`)

	batch, err := e.store.NextBatch(ctx, "tech-1", 5, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	first, err := e.transport.SubmitBatch(ctx, []mutation.Mutation{batch[0].Mutation})
	require.NoError(t, err)
	require.NoError(t, e.store.Close())

	// перезапуск
	store, err := NewSQLiteStorage(e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	agent := NewAgent(store, e.transport, slog.Default(), &AgentConfig{ActorID: "tech-1"})

	n, err := agent.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := agent.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mutation.StatusCompleted, got.Status)
	assert.Equal(t, first[0].ResultRef, got.ResultRef)
	assert.Equal(t, 2, e.transport.timesSubmitted(id))
	assert.Equal(t, 1, e.server.LedgerSize())
}

// Ошибка одной мутации не мешает следующим, порядок сохраняется.
func TestAgent_IsolationAndRetry(t *testing.T) {
	e := newAgentEnv(t, nil)
	ctx := context.Background()

	e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"job_id":"j-1","customer":"ACME","site_address":"Main st. 1"}`)
	bad := e.enqueue(t, mutation.ResourceInspection, mutation.OpUpdate, `{"inspection_id":"i-1","job_id":"j-1","results":{}}`)
	e.enqueue(t, mutation.ResourceEquipment, mutation.OpCreate, `{"equipment_id":"e-1","job_id":"j-1","kind":"boiler","serial":"SN-1"}`)

	res, err := e.agent.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 1, res.Failed)

	failed, err := e.agent.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, bad, failed[0].ID)
	assert.Equal(t, mutation.KindValidation, failed[0].ErrorKind)
	assert.NotEmpty(t, failed[0].ErrorReason)

	require.NoError(t, e.agent.Retry(ctx, bad))
	got, err := e.store.Get(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, mutation.StatusPending, got.Status)
	assert.Zero(t, got.AttemptCount)

	assert.ErrorIs(t, e.agent.Retry(ctx, bad), ErrNotRetryable)
}

func TestAgent_ExhaustedAttempts(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{MaxAttempts: 3})
	ctx := context.Background()

	e.transport.outcomeFn = func(out []mutation.Outcome) []mutation.Outcome {
		for i := range out {
			out[i] = mutation.Failed(out[i].ID, mutation.Transient(errors.New("database is restarting")))
		}
		return out
	}

	id := e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"job_id":"j-1","customer":"ACME","site_address":"Main st. 1"}`)

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := e.agent.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Submitted, "attempt %d", attempt)
	}

	got, err := e.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mutation.StatusFailed, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Equal(t, mutation.KindHandler, got.ErrorKind)

	res, err := e.agent.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Submitted)
}

func TestAgent_AuthErrors(t *testing.T) {
	t.Run("forbidden is terminal", func(t *testing.T) {
		e := newAgentEnv(t, nil)
		ctx := context.Background()
		e.transport.err.Store(ErrForbidden)

		id := e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`)

		res, err := e.agent.Flush(ctx)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 1, res.Failed)

		got, err := e.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, mutation.StatusFailed, got.Status)
		assert.Equal(t, mutation.KindUnauthorized, got.ErrorKind)
	})

	t.Run("unauthenticated keeps queue", func(t *testing.T) {
		e := newAgentEnv(t, nil)
		ctx := context.Background()
		e.transport.err.Store(ErrUnauthenticated)

		id := e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`)

		_, err := e.agent.Flush(ctx)
		assert.ErrorIs(t, err, ErrUnauthenticated)

		got, err := e.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, mutation.StatusPending, got.Status)
		assert.Zero(t, got.AttemptCount)
	})
}

func TestAgent_ConcurrentFlush(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{BatchSize: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.agent.Flush(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, e.transport.timesSubmitted(id))
	}
	counts, err := e.agent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Synced: 12}, counts)
}

func TestAgent_RunFlushesOnReconnect(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{
		ProbeInterval: 10 * time.Millisecond,
		SyncInterval:  time.Hour,
	})
	e.transport.offline.Store(true)

	e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.agent.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	counts, err := e.agent.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)

	e.transport.offline.Store(false)
	assert.Eventually(t, func() bool {
		c, err := e.agent.Status(context.Background())
		return err == nil && c.Synced == 1
	}, 2*time.Second, 10*time.Millisecond)

	e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"Other","site_address":"y"}`)
	e.agent.Trigger()
	assert.Eventually(t, func() bool {
		c, err := e.agent.Status(context.Background())
		return err == nil && c.Synced == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestAgent_DrainSendsAllBatches(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{BatchSize: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`))
	}

	res, err := e.agent.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Submitted)
	assert.Equal(t, 7, res.Completed)

	for _, id := range ids {
		assert.Equal(t, 1, e.transport.timesSubmitted(id))
	}
	counts, err := e.agent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Synced: 7}, counts)
}

func TestAgent_DrainStopsOnRequeue(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{BatchSize: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`)
	}
	e.transport.offline.Store(true)

	res, err := e.agent.Drain(ctx)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 2, res.Submitted)
	assert.Equal(t, 2, res.Requeued)

	counts, err := e.agent.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Pending)
}

func TestAgent_RunDrainsBacklogOnStartup(t *testing.T) {
	e := newAgentEnv(t, &AgentConfig{
		BatchSize:     2,
		ProbeInterval: time.Hour,
		SyncInterval:  time.Hour,
	})
	for i := 0; i < 5; i++ {
		e.enqueue(t, mutation.ResourceJob, mutation.OpCreate, `{"customer":"ACME","site_address":"x"}`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.agent.Run(ctx) }()

	assert.Eventually(t, func() bool {
		c, err := e.agent.Status(context.Background())
		return err == nil && c.Synced == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
