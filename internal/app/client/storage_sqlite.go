package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fieldsync/internal/domain/mutation"
)

// timeLayout сортируется лексикографически в UTC
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	// один писатель: транзакции очереди не конкурируют за блокировку
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}

	// Создаем таблицы
	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS mutations (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL UNIQUE,
			actor_id TEXT NOT NULL,
			resource TEXT NOT NULL,
			operation TEXT NOT NULL,
			payload BLOB NOT NULL,
			status TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_attempt_at TEXT,
			completed_at TEXT,
			error_kind TEXT,
			error_reason TEXT,
			result_ref TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_mutations_status_seq ON mutations(status, seq);
		CREATE INDEX IF NOT EXISTS idx_mutations_created ON mutations(created_at);
	`)

	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// Insert сохраняет PENDING мутацию и выдает ей следующий порядковый номер.
func (s *SQLiteStorage) Insert(ctx context.Context, e *Entry) error {
	if e.Status == "" {
		e.Status = mutation.StatusPending
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mutations (id, seq, actor_id, resource, operation, payload, status, attempt_count, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?, ? FROM mutations
		RETURNING seq
	`, e.ID, e.ActorID, e.Resource, e.Operation, []byte(e.Payload), e.Status, e.AttemptCount,
		formatTime(e.CreatedAt)).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("ошибка сохранения мутации: %w", err)
	}

	return nil
}

const selectColumns = `id, seq, actor_id, resource, operation, payload, status, attempt_count,
	created_at, last_attempt_at, completed_at, error_kind, error_reason, result_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                        Entry
		payload                  []byte
		createdAt                string
		lastAttempt, completedAt sql.NullString
		errKind, errReason, ref  sql.NullString
	)

	err := row.Scan(&e.ID, &e.Seq, &e.ActorID, &e.Resource, &e.Operation, &payload, &e.Status,
		&e.AttemptCount, &createdAt, &lastAttempt, &completedAt, &errKind, &errReason, &ref)
	if err != nil {
		return Entry{}, err
	}

	e.Payload = payload
	// Парсим временные метки
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if lastAttempt.Valid {
		t, _ := time.Parse(timeLayout, lastAttempt.String)
		e.LastAttemptAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(timeLayout, completedAt.String)
		e.CompletedAt = &t
	}
	e.ErrorKind = mutation.ErrorKind(errKind.String)
	e.ErrorReason = errReason.String
	e.ResultRef = ref.String

	return e, nil
}

func (s *SQLiteStorage) NextBatch(ctx context.Context, actorID string, maxAttempts, limit int, now time.Time) ([]Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM mutations
		WHERE status = ? AND actor_id = ? AND attempt_count < ?
		ORDER BY seq
		LIMIT ?
	`, mutation.StatusPending, actorID, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки пакета: %w", err)
	}

	var batch []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования мутации: %w", err)
		}
		batch = append(batch, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка выборки пакета: %w", err)
	}

	ts := formatTime(now)
	for i := range batch {
		if _, err := tx.ExecContext(ctx,
			`UPDATE mutations SET status = ?, last_attempt_at = ? WHERE id = ?`,
			mutation.StatusSubmitted, ts, batch[i].ID); err != nil {
			return nil, fmt.Errorf("ошибка отметки отправки: %w", err)
		}
		batch[i].Status = mutation.StatusSubmitted
		at := now
		batch[i].LastAttemptAt = &at
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return batch, nil
}

// ApplyOutcomes переносит ответ сервера в очередь. Каждый результат
// считается попыткой.
func (s *SQLiteStorage) ApplyOutcomes(ctx context.Context, outcomes []mutation.Outcome, maxAttempts int, now time.Time) (ApplyResult, error) {
	var res ApplyResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(now)
	for _, out := range outcomes {
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT attempt_count FROM mutations WHERE id = ? AND status = ?`,
			out.ID, mutation.StatusSubmitted).Scan(&attempts)
		if errors.Is(err, sql.ErrNoRows) {
			// результат для мутации, которую мы не отправляли
			continue
		}
		if err != nil {
			return res, fmt.Errorf("ошибка чтения мутации %s: %w", out.ID, err)
		}
		attempts++

		switch {
		case out.Status == mutation.StatusCompleted:
			_, err = tx.ExecContext(ctx, `
				UPDATE mutations
				SET status = ?, attempt_count = ?, completed_at = ?, result_ref = ?,
				    error_kind = NULL, error_reason = NULL
				WHERE id = ?`,
				mutation.StatusCompleted, attempts, ts, out.ResultRef, out.ID)
			res.Completed++
		case out.ErrorKind.Retryable() && attempts < maxAttempts:
			_, err = tx.ExecContext(ctx, `
				UPDATE mutations
				SET status = ?, attempt_count = ?, error_kind = ?, error_reason = ?
				WHERE id = ?`,
				mutation.StatusPending, attempts, out.ErrorKind, out.ErrorReason, out.ID)
			res.Requeued++
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE mutations
				SET status = ?, attempt_count = ?, error_kind = ?, error_reason = ?
				WHERE id = ?`,
				mutation.StatusFailed, attempts, out.ErrorKind, out.ErrorReason, out.ID)
			res.Failed++
		}
		if err != nil {
			return res, fmt.Errorf("ошибка обновления мутации %s: %w", out.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ApplyResult{}, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return res, nil
}

// Requeue возвращает отправленные мутации в PENDING без учета попытки.
func (s *SQLiteStorage) Requeue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, mutation.StatusPending, mutation.StatusSubmitted)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	_, err := s.db.ExecContext(ctx,
		`UPDATE mutations SET status = ? WHERE status = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("ошибка возврата мутаций в очередь: %w", err)
	}
	return nil
}

// RecoverSubmitted возвращает в очередь мутации, отправка которых прервалась.
func (s *SQLiteStorage) RecoverSubmitted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE mutations SET status = ? WHERE status = ?`,
		mutation.StatusPending, mutation.StatusSubmitted)
	if err != nil {
		return 0, fmt.Errorf("ошибка восстановления очереди: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) Counts(ctx context.Context, actorID string) (Counts, error) {
	var c Counts

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM mutations WHERE actor_id = ? GROUP BY status`, actorID)
	if err != nil {
		return c, fmt.Errorf("ошибка подсчета мутаций: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status mutation.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("ошибка подсчета мутаций: %w", err)
		}
		switch status {
		case mutation.StatusPending:
			c.Pending = n
		case mutation.StatusSubmitted:
			c.Syncing = n
		case mutation.StatusCompleted:
			c.Synced = n
		case mutation.StatusFailed:
			c.Failed = n
		}
	}

	return c, rows.Err()
}

func (s *SQLiteStorage) ListByStatus(ctx context.Context, actorID string, status mutation.Status, limit int) ([]Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM mutations WHERE actor_id = ? AND status = ? ORDER BY seq`
	args := []any{actorID, status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования мутации: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *SQLiteStorage) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM mutations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения мутации: %w", err)
	}
	return &e, nil
}

// Retry - действие пользователя: FAILED мутация снова становится PENDING
// со сброшенным счетчиком попыток.
func (s *SQLiteStorage) Retry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET status = ?, attempt_count = 0, error_kind = NULL, error_reason = NULL
		WHERE id = ? AND status = ?`,
		mutation.StatusPending, id, mutation.StatusFailed)
	if err != nil {
		return fmt.Errorf("ошибка повтора мутации: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotRetryable
	}
	return nil
}

// Prune удаляет синхронизированные мутации старше completedBefore.
func (s *SQLiteStorage) Prune(ctx context.Context, completedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mutations WHERE status = ? AND completed_at < ?`,
		mutation.StatusCompleted, formatTime(completedBefore))
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки очереди: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
