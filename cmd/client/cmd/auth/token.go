package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldsync/internal/app/client"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Сохранить токен сессии",
	Long: `Сохраняет bearer-токен, выданный провайдером учетных записей.

Токен читается без отображения на экране. Если ввод не терминал,
токен читается из первой строки stdin.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		var token string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Print("Токен: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("ошибка чтения токена: %w", err)
			}
			fmt.Println()
			token = string(raw)
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("ошибка чтения токена: %w", err)
			}
			token = strings.TrimSpace(line)
		}

		if err := app.SaveToken(token); err != nil {
			return err
		}

		fmt.Println("✓ Токен сохранен")
		return nil
	},
}

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Удалить сохраненный токен",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.ClearToken(); err != nil {
			return err
		}
		fmt.Println("✓ Токен удален")
		return nil
	},
}
