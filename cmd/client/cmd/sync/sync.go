package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/app/client"
)

var (
	syncStatus bool
	showFailed bool
	retryID    string
	watch      bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Отправка локальной очереди на сервер.

Без флагов выполняет один проход синхронизации. --watch запускает
фоновый цикл: отправка при появлении связи, по таймеру и с повтором
после ошибок.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		switch {
		case syncStatus:
			return showSyncStatus(ctx, app)
		case showFailed:
			return showFailedMutations(ctx, app)
		case retryID != "":
			return retryMutation(ctx, app, retryID)
		case watch:
			return app.Run(ctx)
		}

		return runSync(ctx, app)
	},
}

func runSync(ctx context.Context, app *client.App) error {
	agent := app.Agent()
	if _, err := agent.Recover(ctx); err != nil {
		return err
	}

	fmt.Println("Синхронизация...")
	total, err := agent.Drain(ctx)
	if errors.Is(err, client.ErrOffline) {
		fmt.Println("⚠️  Сервер недоступен, изменения остаются в очереди")
	} else if err != nil {
		return fmt.Errorf("ошибка синхронизации: %w", err)
	}

	fmt.Printf("Отправлено: %d, применено: %d, ошибок: %d, ожидают: %d\n",
		total.Submitted, total.Completed, total.Failed, total.Requeued)
	if total.Failed > 0 {
		fmt.Println("Подробности: fieldsync sync --failed")
	}
	return nil
}

func showSyncStatus(ctx context.Context, app *client.App) error {
	counts, err := app.Agent().Status(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения статуса: %w", err)
	}

	fmt.Println("=== Статус очереди ===")
	fmt.Printf("Ожидают отправки:   %d\n", counts.Pending)
	fmt.Printf("Отправляются:       %d\n", counts.Syncing)
	fmt.Printf("Синхронизированы:   %d\n", counts.Synced)
	fmt.Printf("Ошибки:             %d\n", counts.Failed)
	return nil
}

func showFailedMutations(ctx context.Context, app *client.App) error {
	failed, err := app.Agent().Failed(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения списка: %w", err)
	}
	if len(failed) == 0 {
		fmt.Println("✓ Ошибок нет")
		return nil
	}

	for _, e := range failed {
		fmt.Printf("%s  %-22s  попыток: %d  %s: %s\n",
			e.ID, e.Action(), e.AttemptCount, e.ErrorKind, e.ErrorReason)
	}
	fmt.Println()
	fmt.Println("Повторить: fieldsync sync --retry ID")
	return nil
}

func retryMutation(ctx context.Context, app *client.App, id string) error {
	if err := app.Agent().Retry(ctx, id); err != nil {
		return fmt.Errorf("ошибка повтора: %w", err)
	}
	fmt.Printf("✓ %s снова в очереди\n", id)
	return nil
}

func init() {
	SyncCmd.Flags().BoolVarP(&syncStatus, "status", "s", false, "показать статус очереди")
	SyncCmd.Flags().BoolVar(&showFailed, "failed", false, "показать неуспешные изменения")
	SyncCmd.Flags().StringVar(&retryID, "retry", "", "вернуть неуспешное изменение в очередь")
	SyncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "синхронизировать в фоне до прерывания")
}
