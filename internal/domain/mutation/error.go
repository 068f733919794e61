package mutation

import (
	"errors"
	"fmt"
)

// ErrorKind - класс ошибки применения мутации. От него зависит, будет ли
// клиент повторять отправку.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION_ERROR"
	KindUnknownAction  ErrorKind = "UNKNOWN_ACTION"
	KindHandler        ErrorKind = "HANDLER_ERROR"
	KindUnauthorized   ErrorKind = "UNAUTHORIZED"
	KindAlreadyApplied ErrorKind = "ALREADY_APPLIED"
)

// Retryable сообщает, имеет ли смысл повторная отправка.
func (k ErrorKind) Retryable() bool {
	return k == KindHandler
}

var (
	ErrUnknownAction = errors.New("no handler registered for action")
	ErrUnauthorized  = errors.New("actor is not allowed to submit mutations")
)

// Error - ошибка с классом, по которому принимается решение о повторе
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation помечает ошибку как ошибку формата данных (без повтора).
func Validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// Transient помечает ошибку как временную (с повтором).
func Transient(err error) error {
	return &Error{Kind: KindHandler, Err: err}
}

// UnknownAction возвращает ошибку отсутствующего обработчика.
func UnknownAction(action string) error {
	return &Error{Kind: KindUnknownAction, Err: fmt.Errorf("%w: %s", ErrUnknownAction, action)}
}

// KindOf извлекает класс ошибки. Ошибки без класса считаются временными.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	return KindHandler
}
