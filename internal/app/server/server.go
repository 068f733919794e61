package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/api"
	"fieldsync/internal/app/server/config"
	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/resource"
	"fieldsync/internal/domain/session"
	"fieldsync/internal/infrastructure/backup"
	"fieldsync/internal/infrastructure/storage/memory"
	"fieldsync/internal/infrastructure/storage/postgres"
	"fieldsync/internal/observability"
)

// storage - набор репозиториев одного хранилища
type storage struct {
	dispatch dispatch.Repository
	reader   resource.Reader
	claims   claim.Repository
	audit    audit.Repository
	sessions session.Repository
	pinger   interface{ Ping(ctx context.Context) error }
	close    func() error
}

// App - собранный сервер
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	store    storage
	service  *dispatch.Service
	pool     *dispatch.Pool
	tracing  *observability.Tracing
	registry *prometheus.Registry
	handler  http.Handler

	// Memory заполнен, если сервер работает без базы.
	Memory *memory.Store
}

// New собирает зависимости. Без DATABASE_URI используется хранилище в памяти.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log}

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  "fieldsync-server",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Enabled:      cfg.Tracing.Enabled,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.tracing = tracing

	if err := app.openStorage(ctx); err != nil {
		return nil, err
	}

	var store resource.Backup = backup.Noop{}
	if cfg.Backup.Endpoint != "" {
		minio, err := backup.NewMinIO(cfg.Backup, log)
		if err != nil {
			return nil, fmt.Errorf("init backup: %w", err)
		}
		store = minio
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(app.registry)

	registry := dispatch.NewRegistry()
	resource.Register(registry, app.store.reader, store)

	auditService := audit.NewService(app.store.audit, log)
	dispatchConfig := &dispatch.ServiceConfig{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}
	app.service = dispatch.NewService(app.store.dispatch, registry, auditService, metrics, log, dispatchConfig)
	app.pool = dispatch.NewPool(app.service, metrics, log, dispatchConfig)

	claimService := claim.NewService(app.store.claims, auditService, metrics, nil, log,
		&claim.ServiceConfig{LeaseDuration: cfg.Claim.LeaseDuration})

	app.handler = api.New(api.Deps{
		Sessions:  session.NewService(app.store.sessions, log),
		Submitter: app.pool,
		Ledger:    app.service,
		Claims:    claimService,
		Audit:     auditService,
		Pinger:    app.store.pinger,
		Gatherer:  app.registry,
	}, log)

	return app, nil
}

func (a *App) openStorage(ctx context.Context) error {
	if a.cfg.DB.DatabaseURI == "" {
		a.log.Warn("DATABASE_URI is empty, using in-memory storage")
		mem := memory.New()
		a.Memory = mem
		a.store = storage{
			dispatch: mem,
			reader:   mem,
			claims:   mem.Claims(),
			audit:    mem.Audit(),
			sessions: mem.Sessions(),
			close:    mem.Close,
		}
		return nil
	}

	db, err := postgres.New(ctx, a.cfg.DB)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDispatchRepository(db, a.log)
	a.store = storage{
		dispatch: repo,
		reader:   repo,
		claims:   postgres.NewClaimRepository(db, a.log),
		audit:    postgres.NewAuditRepository(db, a.log),
		sessions: postgres.NewSessionRepository(db, a.log),
		pinger:   db,
		close:    db.Close,
	}
	return nil
}

// Handler отдает корневой HTTP обработчик.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run обслуживает запросы до отмены ctx, затем останавливается в пределах
// ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	a.pool.Start(ctx)

	srv := &http.Server{
		Addr:    a.cfg.Server.RunAddress,
		Handler: a.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server started", "address", a.cfg.Server.RunAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errCh:
		a.log.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown: %w", err))
	}
	return errors.Join(runErr, a.Close(shutdownCtx))
}

// Close останавливает очередь, дожидается фоновых задач и закрывает хранилище.
func (a *App) Close(ctx context.Context) error {
	a.pool.Stop()
	a.service.Wait()

	var err error
	if a.tracing != nil {
		err = errors.Join(err, a.tracing.Shutdown(ctx))
	}
	if a.store.close != nil {
		err = errors.Join(err, a.store.close())
	}
	return err
}
