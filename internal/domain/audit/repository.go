package audit

import "context"

type Repository interface {
	// Append под блокировкой цепочки читает EventHash последней записи
	// (пустая строка для первой), вызывает link и сохраняет событие.
	Append(ctx context.Context, event *Event, link func(prevHash string)) error
	List(ctx context.Context, query Query) ([]Event, error)
}
