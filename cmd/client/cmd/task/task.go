package task

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/app/client"
)

const requestTimeout = 30 * time.Second

// TaskCmd - родительская команда для аренды задач
var TaskCmd = &cobra.Command{
	Use:   "task",
	Short: "Захват задач",
	Long: `Захват, освобождение и просмотр аренды задач.

Аренда выдается сервером на ограниченное время и требует связи.`,
}

var ClaimCmd = &cobra.Command{
	Use:   "claim TASK_ID",
	Short: "Захватить задачу",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		res, err := app.Agent().Claim(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ошибка захвата: %w", err)
		}

		if res.Claimed {
			fmt.Printf("✓ Задача %s за вами до %s\n", args[0], res.ExpiresAt.Local().Format(time.DateTime))
			return nil
		}
		fmt.Printf("✗ Задачу %s уже выполняет %s (до %s)\n", args[0], res.ClaimedBy, res.ExpiresAt.Local().Format(time.DateTime))
		return nil
	},
}

var ReleaseCmd = &cobra.Command{
	Use:   "release TASK_ID",
	Short: "Освободить задачу",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		if _, err := app.Agent().Release(ctx, args[0]); err != nil {
			return fmt.Errorf("ошибка освобождения: %w", err)
		}
		fmt.Printf("✓ Задача %s освобождена\n", args[0])
		return nil
	},
}

var ShowCmd = &cobra.Command{
	Use:   "show TASK_ID",
	Short: "Показать аренду задачи",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		state, err := app.Agent().GetClaim(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ошибка запроса: %w", err)
		}

		if !state.Claimed {
			fmt.Printf("Задача %s свободна\n", args[0])
			return nil
		}
		fmt.Printf("Задача %s\n", args[0])
		fmt.Printf("  Исполнитель: %s\n", state.HolderID)
		if state.ClaimedAt != nil {
			fmt.Printf("  С:           %s\n", state.ClaimedAt.Local().Format(time.DateTime))
		}
		if state.ExpiresAt != nil {
			fmt.Printf("  До:          %s\n", state.ExpiresAt.Local().Format(time.DateTime))
		}
		return nil
	},
}
