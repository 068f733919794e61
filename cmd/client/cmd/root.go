// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fieldsync/internal/app/client"
	"fieldsync/internal/app/client/config"
	"fieldsync/internal/utils/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	actorID   string
	serverURL string
	app       *client.App
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Fieldsync - офлайн-клиент для выездных техников",
	Long: `Fieldsync записывает изменения по выездам, осмотрам и оборудованию
в локальную очередь и отправляет их на сервер, когда появляется связь.

Каждое изменение сохраняется на устройстве до подтверждения сервером.
Повторная отправка безопасна: сервер применяет изменение один раз.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg := config.MustLoad(cfgFile)

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if actorID != "" {
		cfg.ActorID = actorID
	}

	log := logger.New(cfg.Env)

	var err error
	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(client.WithApp(cmd.Context(), app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	// Глобальные флаги
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера Fieldsync (host:port)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "ID техника (по умолчанию ACTOR_ID)")
}
