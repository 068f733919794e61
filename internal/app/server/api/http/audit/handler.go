package audit

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/session"
)

type Handler struct {
	service    audit.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service audit.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log.With("component", "audit_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	actor, ok := session.ActorFrom(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("authentication required")
	}
	if !actor.IsAdmin() {
		return nil, huma.Error403Forbidden("audit log is available to admins only")
	}

	events, err := h.service.List(ctx, audit.Query{
		ActorID: input.ActorID,
		Subject: input.Subject,
		Kind:    audit.Kind(input.Kind),
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		h.log.Error("list audit events", "error", err)
		return nil, huma.Error500InternalServerError("failed to list audit events")
	}
	if events == nil {
		events = []audit.Event{}
	}

	return &listOutput{Body: ListResponse{Events: events}}, nil
}
