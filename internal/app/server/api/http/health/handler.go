package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	pinger     Pinger
	log        *slog.Logger
	middleware huma.Middlewares
}

// NewHandler: pinger может быть nil для хранилища в памяти.
func NewHandler(pinger Pinger, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		pinger:     pinger,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

// healthCheck отвечает 503, если хранилище недоступно: клиент считает
// такой сервер офлайн и не начинает синхронизацию.
func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			h.log.Warn("storage unavailable", "error", err)
			return nil, huma.Error503ServiceUnavailable("storage unavailable")
		}
	}

	return &Output{
		Body: Response{
			Status:     "OK",
			Storage:    "OK",
			ServerTime: time.Now().UTC(),
		},
	}, nil
}
