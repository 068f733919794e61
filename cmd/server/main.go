package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fieldsync/internal/app/server"
	"fieldsync/internal/app/server/config"
	"fieldsync/internal/utils/logger"
)

func main() {
	conf := config.MustLoad()
	log := logger.New(conf.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, conf, log)
	if err != nil {
		log.Error("failed to init server", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
