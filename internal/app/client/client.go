package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/slog"

	"fieldsync/internal/app/client/config"
)

type App struct {
	config     *config.Config
	log        *slog.Logger
	httpClient *httpClient
	storage    Storage
	agent      *Agent
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	// Инициализируем локальное хранилище очереди
	storage, err := NewSQLiteStorage(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации очереди: %w", err)
	}

	httpCl := NewHTTPClient(cfg, log)

	app := &App{
		config:     cfg,
		log:        log,
		httpClient: httpCl,
		storage:    storage,
	}
	app.agent = NewAgent(storage, httpCl, log, &AgentConfig{
		ActorID:       cfg.ActorID,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		SyncTimeout:   cfg.SyncTimeout,
		SyncInterval:  cfg.SyncInterval,
		ProbeInterval: cfg.ProbeInterval,
		Retention:     cfg.Retention,
	})

	// Загружаем токен если он есть
	if token, err := app.GetToken(); err == nil && token != "" {
		httpCl.SetToken(token)
		log.Debug("Токен загружен из файла")
	}

	return app, nil
}

// Agent возвращает агент очереди
func (a *App) Agent() *Agent {
	return a.agent
}

func (a *App) Config() *config.Config {
	return a.config
}

// Run запускает фоновую синхронизацию до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("Клиент запущен",
		"server", a.config.ServerAddress,
		"env", a.config.Env,
	)
	err := a.agent.Run(ctx)
	a.log.Info("Синхронизация остановлена")
	return err
}

func (a *App) Close() error {
	return a.storage.Close()
}

// GetToken возвращает сохраненный токен
func (a *App) GetToken() (string, error) {
	tokenBytes, err := os.ReadFile(a.config.TokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("токен не найден. Выполните: fieldsync auth token")
		}
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	return strings.TrimSpace(string(tokenBytes)), nil
}

// SaveToken сохраняет токен, выданный внешним провайдером
func (a *App) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("токен не может быть пустым")
	}
	if err := os.WriteFile(a.config.TokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("ошибка сохранения токена: %w", err)
	}

	a.httpClient.SetToken(token)

	return nil
}

// ClearToken удаляет токен
func (a *App) ClearToken() error {
	if err := os.Remove(a.config.TokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления токена: %w", err)
	}
	a.httpClient.SetToken("")
	return nil
}

type appKey struct{}

// WithApp кладет приложение в контекст команды
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// FromContext достает приложение из контекста команды
func FromContext(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey{}).(*App)
	if !ok || app == nil {
		return nil, fmt.Errorf("клиент не инициализирован")
	}
	return app, nil
}
