package task

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/session"
)

type Handler struct {
	service    claim.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service claim.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log.With("component", "task_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.claimOp(), h.claim)
	huma.Register(api, h.releaseOp(), h.release)
	huma.Register(api, h.getClaimOp(), h.getClaim)
}

// claim: проигрыш гонки - это 200 с claimed=false, а не ошибка.
func (h *Handler) claim(ctx context.Context, input *taskInput) (*claimOutput, error) {
	actor, _ := session.ActorFrom(ctx)

	res, err := h.service.Claim(ctx, actor, input.TaskID)
	if err != nil {
		return nil, h.mapError(err, input.TaskID)
	}
	return &claimOutput{Body: res}, nil
}

func (h *Handler) release(ctx context.Context, input *taskInput) (*releaseOutput, error) {
	actor, _ := session.ActorFrom(ctx)

	ok, err := h.service.Release(ctx, actor, input.TaskID)
	if err != nil {
		return nil, h.mapError(err, input.TaskID)
	}
	return &releaseOutput{Body: ReleaseResponse{Released: ok}}, nil
}

func (h *Handler) getClaim(ctx context.Context, input *taskInput) (*getClaimOutput, error) {
	if _, ok := session.ActorFrom(ctx); !ok {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	c, err := h.service.Get(ctx, input.TaskID)
	if errors.Is(err, claim.ErrNotFound) {
		return &getClaimOutput{Body: ClaimResponse{Claimed: false}}, nil
	}
	if err != nil {
		return nil, h.mapError(err, input.TaskID)
	}

	return &getClaimOutput{Body: ClaimResponse{
		Claimed:   true,
		HolderID:  c.HolderID,
		ClaimedAt: &c.ClaimedAt,
		ExpiresAt: &c.ExpiresAt,
	}}, nil
}

func (h *Handler) mapError(err error, taskID string) error {
	switch {
	case errors.Is(err, claim.ErrUnauthenticated):
		return huma.Error401Unauthorized("authentication required")
	case errors.Is(err, claim.ErrForbidden):
		return huma.Error403Forbidden("role is not allowed to claim tasks")
	case errors.Is(err, claim.ErrInvalidTask):
		return huma.Error400BadRequest("task id is required")
	default:
		h.log.Error("claim operation failed", "task_id", taskID, "error", err)
		return huma.Error500InternalServerError("claim operation failed")
	}
}
