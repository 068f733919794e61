package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/config"
	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/mutation"
)

// newTestStorage подключается к базе из FIELDSYNC_TEST_DATABASE_URI.
// Без переменной тесты пропускаются.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	uri := os.Getenv("FIELDSYNC_TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("FIELDSYNC_TEST_DATABASE_URI is not set")
	}
	migrations, err := filepath.Abs("../../../../migrations")
	require.NoError(t, err)

	db, err := New(context.Background(), config.DBConfig{DatabaseURI: uri, Migrations: migrations})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestClaimRepository_ConcurrentAcquire(t *testing.T) {
	db := newTestStorage(t)
	repo := NewClaimRepository(db, slog.Default())
	ctx := context.Background()

	taskID := "task-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	const actors = 8
	results := make([]bool, actors)
	holders := make([]string, actors)
	var wg sync.WaitGroup
	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acq, err := repo.TryAcquire(ctx, taskID, fmt.Sprintf("tech-%d", i), now, now.Add(time.Minute))
			assert.NoError(t, err)
			results[i] = acq.Acquired
			holders[i] = acq.Current.HolderID
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := ""
	for i, ok := range results {
		if ok {
			winners++
			winner = fmt.Sprintf("tech-%d", i)
		}
	}
	require.Equal(t, 1, winners)
	for _, h := range holders {
		assert.Equal(t, winner, h)
	}
}

func TestClaimRepository_LeaseLifecycle(t *testing.T) {
	db := newTestStorage(t)
	repo := NewClaimRepository(db, slog.Default())
	ctx := context.Background()

	taskID := "task-" + uuid.NewString()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	acq, err := repo.TryAcquire(ctx, taskID, "tech-a", t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, acq.Acquired)
	assert.Nil(t, acq.Previous)

	// чужой захват до истечения
	acq, err = repo.TryAcquire(ctx, taskID, "tech-b", t0.Add(10*time.Second), t0.Add(70*time.Second))
	require.NoError(t, err)
	assert.False(t, acq.Acquired)
	assert.Equal(t, "tech-a", acq.Current.HolderID)

	// продление сохраняет claimed_at
	acq, err = repo.TryAcquire(ctx, taskID, "tech-a", t0.Add(20*time.Second), t0.Add(80*time.Second))
	require.NoError(t, err)
	require.True(t, acq.Acquired)
	assert.True(t, t0.Equal(acq.Current.ClaimedAt))
	assert.True(t, t0.Add(80*time.Second).Equal(acq.Current.ExpiresAt))

	// после истечения задачу забирает другой
	later := t0.Add(2 * time.Minute)
	acq, err = repo.TryAcquire(ctx, taskID, "tech-b", later, later.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, acq.Acquired)
	require.NotNil(t, acq.Previous)
	assert.Equal(t, "tech-a", acq.Previous.HolderID)

	released, err := repo.Release(ctx, taskID, "tech-a")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = repo.Release(ctx, taskID, "tech-b")
	require.NoError(t, err)
	assert.True(t, released)

	_, err = repo.Get(ctx, taskID)
	assert.ErrorIs(t, err, claim.ErrNotFound)
}

func TestDispatchRepository_ConcurrentReserve(t *testing.T) {
	db := newTestStorage(t)
	repo := NewDispatchRepository(db, slog.Default())
	ctx := context.Background()

	id := uuid.NewString()
	entry := dispatch.LedgerEntry{
		MutationID: id,
		ActorID:    "tech-1",
		Resource:   mutation.ResourceJob,
		Operation:  mutation.OpCreate,
		AppliedAt:  time.Now().UTC(),
	}

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Do(ctx, func(tx dispatch.Tx) error {
				if err := tx.ReserveLedger(ctx, entry); err != nil {
					return err
				}
				time.Sleep(20 * time.Millisecond)
				return tx.CompleteLedger(ctx, id, "job:"+id)
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, dispatch.ErrDuplicateMutation)
	}
	assert.Equal(t, 1, ok)

	got, err := repo.GetLedger(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "job:"+id, got.ResultRef)
}

func TestAuditRepository_ConcurrentWritersKeepChain(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	var headID int64
	var headHash string
	err := db.Pool().QueryRow(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM audit_events`).Scan(&headID)
	require.NoError(t, err)
	if headID > 0 {
		err = db.Pool().QueryRow(ctx,
			`SELECT event_hash FROM audit_events WHERE id = $1`, headID).Scan(&headHash)
		require.NoError(t, err)
	}

	// два репозитория и сервиса, как два экземпляра сервера
	writers := []*audit.Service{
		audit.NewService(NewAuditRepository(db, slog.Default()), slog.Default()),
		audit.NewService(NewAuditRepository(db, slog.Default()), slog.Default()),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			writers[i%2].Record(ctx, audit.Event{
				Kind:    audit.KindMutationApplied,
				ActorID: "tech-1",
				Subject: fmt.Sprintf("m-%d", i),
				Details: map[string]any{"n": i},
			})
		}(i)
	}
	wg.Wait()

	rows, err := db.Pool().Query(ctx,
		`SELECT id, kind, actor_id, subject, details, payload_hash, prev_hash, event_hash, created_at
         FROM audit_events WHERE id > $1 ORDER BY id`, headID)
	require.NoError(t, err)
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		require.NoError(t, rows.Scan(&e.ID, &e.Kind, &e.ActorID, &e.Subject, &e.Details,
			&e.PayloadHash, &e.PrevHash, &e.EventHash, &e.CreatedAt))
		events = append(events, e)
	}
	require.NoError(t, rows.Err())

	require.Len(t, events, 20)
	assert.Equal(t, headHash, events[0].PrevHash)
	assert.NoError(t, audit.Verify(events))
}
