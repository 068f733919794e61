package claim

import "errors"

var (
	ErrForbidden       = errors.New("role is not allowed to claim tasks")
	ErrUnauthenticated = errors.New("actor is not authenticated")
	ErrInvalidTask     = errors.New("task id is required")
	ErrNotFound        = errors.New("claim not found")
)
