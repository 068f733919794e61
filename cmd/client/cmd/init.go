// cmd/client/cmd/init.go
package cmd

import (
	"fieldsync/cmd/client/cmd/auth"
	"fieldsync/cmd/client/cmd/enqueue"
	"fieldsync/cmd/client/cmd/sync"
	"fieldsync/cmd/client/cmd/task"
)

func init() {
	// Добавляем команды аутентификации
	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.TokenCmd)
	auth.AuthCmd.AddCommand(auth.LogoutCmd)

	rootCmd.AddCommand(enqueue.EnqueueCmd)

	rootCmd.AddCommand(sync.SyncCmd)

	// Добавляем команды работы с задачами
	rootCmd.AddCommand(task.TaskCmd)
	task.TaskCmd.AddCommand(task.ClaimCmd)
	task.TaskCmd.AddCommand(task.ReleaseCmd)
	task.TaskCmd.AddCommand(task.ShowCmd)
}
