package sync

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/mutation"
	"fieldsync/internal/domain/session"
)

// Submitter - очередь обработки пакетов
type Submitter interface {
	Submit(ctx context.Context, batch mutation.Batch) ([]mutation.Outcome, error)
}

// LedgerReader отдает запись реестра примененных мутаций
type LedgerReader interface {
	Lookup(ctx context.Context, mutationID string) (*dispatch.LedgerEntry, error)
}

type Handler struct {
	submitter  Submitter
	ledger     LedgerReader
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(submitter Submitter, ledger LedgerReader, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		submitter:  submitter,
		ledger:     ledger,
		log:        log.With("component", "sync_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.submitBatchOp(), h.submitBatch)
	huma.Register(api, h.getLedgerOp(), h.getLedger)
}

func fieldActor(ctx context.Context) (session.Actor, error) {
	actor, ok := session.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return session.Actor{}, huma.Error401Unauthorized("authentication required")
	}
	if !actor.CanDoFieldWork() {
		return session.Actor{}, huma.Error403Forbidden("role is not allowed to submit field mutations")
	}
	return actor, nil
}

func (h *Handler) submitBatch(ctx context.Context, input *submitBatchInput) (*submitBatchOutput, error) {
	actor, err := fieldActor(ctx)
	if err != nil {
		return nil, err
	}

	if input.Body.ActorID != "" && input.Body.ActorID != actor.ID {
		h.log.Warn("batch actor differs from session, using session",
			"claimed", input.Body.ActorID, "actor_id", actor.ID)
	}

	batch := mutation.Batch{ActorID: actor.ID, Mutations: input.Body.Mutations}
	outcomes, err := h.submitter.Submit(ctx, batch)
	switch {
	case errors.Is(err, dispatch.ErrPoolBusy), errors.Is(err, dispatch.ErrPoolStopped):
		return nil, huma.Error503ServiceUnavailable("server is busy, retry later")
	case errors.Is(err, dispatch.ErrEmptyActor):
		return nil, huma.Error400BadRequest("actor is required")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, huma.Error503ServiceUnavailable("request cancelled")
	case err != nil:
		h.log.Error("process batch", "actor_id", actor.ID, "error", err)
		return nil, huma.Error500InternalServerError("failed to process batch")
	}

	return &submitBatchOutput{Body: SubmitBatchResponse{Outcomes: outcomes}}, nil
}

func (h *Handler) getLedger(ctx context.Context, input *getLedgerInput) (*getLedgerOutput, error) {
	if _, err := fieldActor(ctx); err != nil {
		return nil, err
	}

	entry, err := h.ledger.Lookup(ctx, input.ID)
	if errors.Is(err, dispatch.ErrNotApplied) {
		return nil, huma.Error404NotFound("mutation not applied")
	}
	if err != nil {
		h.log.Error("lookup ledger", "mutation_id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("failed to read ledger")
	}

	return &getLedgerOutput{Body: LedgerResponse{
		MutationID: entry.MutationID,
		ActorID:    entry.ActorID,
		Resource:   entry.Resource.String(),
		Operation:  entry.Operation.String(),
		ResultRef:  entry.ResultRef,
		AppliedAt:  entry.AppliedAt,
	}}, nil
}
