// HTTP API сервера синхронизации.
//
//GET    /api/v1/health                  # Проверка доступности (публичный)
//POST   /api/v1/sync/batch              # Пакет мутаций (auth)
//GET    /api/v1/sync/ledger/{id}        # Запись реестра (auth)
//POST   /api/v1/tasks/{taskID}/claim    # Захват задачи (auth)
//POST   /api/v1/tasks/{taskID}/release  # Освобождение задачи (auth)
//GET    /api/v1/tasks/{taskID}/claim    # Состояние аренды (auth)
//GET    /api/v1/audit                   # Журнал аудита (auth, admin)
//GET    /metrics                        # Prometheus

package api

import (
	auditAPI "fieldsync/internal/app/server/api/http/audit"
	healthAPI "fieldsync/internal/app/server/api/http/health"
	"fieldsync/internal/app/server/api/http/middleware"
	"fieldsync/internal/app/server/api/http/middleware/auth"
	"fieldsync/internal/app/server/api/http/middleware/logger"
	syncAPI "fieldsync/internal/app/server/api/http/sync"
	taskAPI "fieldsync/internal/app/server/api/http/task"
	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/session"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"
)

// Deps - сервисы, которые обслуживает API
type Deps struct {
	Sessions  session.Servicer
	Submitter syncAPI.Submitter
	Ledger    syncAPI.LedgerReader
	Claims    claim.Servicer
	Audit     audit.Servicer
	// Pinger может быть nil
	Pinger   healthAPI.Pinger
	Gatherer prometheus.Gatherer
}

type Handlers struct {
	Health *healthAPI.Handler
	Sync   *syncAPI.Handler
	Task   *taskAPI.Handler
	Audit  *auditAPI.Handler
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register
func New(deps Deps, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.Recoverer)

	config := huma.DefaultConfig("Fieldsync API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, config)

	h := handlers(deps, log)
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)
	h.Task.SetupRoutes(API)
	h.Audit.SetupRoutes(API)

	if deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func handlers(deps Deps, log *slog.Logger) *Handlers {
	authMW := auth.New(deps.Sessions, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := healthAPI.NewHandler(deps.Pinger, log, middlewares.GetAllAndClear())

	middlewares.Add(authMW.Middleware())
	middlewares.Add(loggerMW.Middleware())
	syncHandler := syncAPI.NewHandler(deps.Submitter, deps.Ledger, log, middlewares.GetAllAndClear())

	middlewares.Add(authMW.Middleware())
	middlewares.Add(loggerMW.Middleware())
	taskHandler := taskAPI.NewHandler(deps.Claims, log, middlewares.GetAllAndClear())

	middlewares.Add(authMW.Middleware())
	middlewares.Add(loggerMW.Middleware())
	auditHandler := auditAPI.NewHandler(deps.Audit, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Sync:   syncHandler,
		Task:   taskHandler,
		Audit:  auditHandler,
	}
}
