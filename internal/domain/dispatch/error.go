package dispatch

import "errors"

var (
	ErrNotApplied        = errors.New("mutation not applied")
	ErrDuplicateMutation = errors.New("mutation already recorded in ledger")
	ErrEmptyActor        = errors.New("batch has no actor")
	ErrPoolBusy          = errors.New("dispatch queue is full")
	ErrPoolStopped       = errors.New("dispatch pool stopped")
)
