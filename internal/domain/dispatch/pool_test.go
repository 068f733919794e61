package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/mutation"
)

type recordingProcessor struct {
	mu      sync.Mutex
	active  map[string]int
	overlap atomic.Bool
	calls   atomic.Int32
	hold    time.Duration
	release chan struct{}
}

func (p *recordingProcessor) Process(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error) {
	p.mu.Lock()
	p.active[batch.ActorID]++
	if p.active[batch.ActorID] > 1 {
		p.overlap.Store(true)
	}
	p.mu.Unlock()

	if p.release != nil {
		<-p.release
	}
	time.Sleep(p.hold)
	p.calls.Add(1)

	p.mu.Lock()
	p.active[batch.ActorID]--
	p.mu.Unlock()

	out := make([]mutation.Outcome, 0, len(batch.Mutations))
	for _, m := range batch.Mutations {
		out = append(out, mutation.Completed(m.ID, "ok"))
	}
	return out, nil
}

func TestPool_SerializesPerActor(t *testing.T) {
	proc := &recordingProcessor{active: map[string]int{}, hold: 5 * time.Millisecond}
	pool := NewPool(proc, nil, slog.Default(), &ServiceConfig{Workers: 4, QueueSize: 32})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := "tech-a"
			if i%2 == 1 {
				actor = "tech-b"
			}
			out, err := pool.Submit(context.Background(), mutation.Batch{
				ActorID:   actor,
				Mutations: []mutation.Mutation{{ID: "m"}},
			})
			assert.NoError(t, err)
			assert.Len(t, out, 1)
		}(i)
	}
	wg.Wait()

	assert.False(t, proc.overlap.Load())
	assert.Equal(t, int32(12), proc.calls.Load())
}

func TestPool_Busy(t *testing.T) {
	proc := &recordingProcessor{active: map[string]int{}, release: make(chan struct{})}
	pool := NewPool(proc, nil, slog.Default(), &ServiceConfig{Workers: 1, QueueSize: 1})
	pool.Start(context.Background())

	// Первый пакет занимает воркера, второй ждет в очереди.
	go pool.Submit(context.Background(), mutation.Batch{ActorID: "a"})
	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return proc.active["a"] == 1
	}, time.Second, time.Millisecond)
	go pool.Submit(context.Background(), mutation.Batch{ActorID: "b"})
	require.Eventually(t, func() bool { return len(pool.jobs) == 1 }, time.Second, time.Millisecond)

	_, err := pool.Submit(context.Background(), mutation.Batch{ActorID: "c"})
	assert.ErrorIs(t, err, ErrPoolBusy)

	close(proc.release)
	pool.Stop()

	_, err = pool.Submit(context.Background(), mutation.Batch{ActorID: "d"})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestPool_SubmitCancelled(t *testing.T) {
	proc := &recordingProcessor{active: map[string]int{}, release: make(chan struct{})}
	pool := NewPool(proc, nil, slog.Default(), &ServiceConfig{Workers: 1, QueueSize: 4})
	pool.Start(context.Background())
	defer func() {
		close(proc.release)
		pool.Stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Submit(ctx, mutation.Batch{ActorID: "a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_Cleans(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.entries)
}
