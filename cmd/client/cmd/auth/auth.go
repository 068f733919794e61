package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd - родительская команда для управления токеном сессии
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Управление сессией",
	Long: `Сохранение и удаление токена сессии.

Токен выдает внешний провайдер учетных записей, клиент только хранит его.`,
}
