package enqueue

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fieldsync/internal/app/client"
	"fieldsync/internal/domain/mutation"
)

var (
	payloadFile string
	syncNow     bool
)

var EnqueueCmd = &cobra.Command{
	Use:   "enqueue RESOURCE OPERATION [PAYLOAD]",
	Short: "Добавить изменение в очередь",
	Long: `Записывает изменение в локальную очередь. Сеть не нужна.

RESOURCE: job, inspection, equipment
OPERATION: CREATE, UPDATE
PAYLOAD: JSON объект, аргументом, через --file или из stdin ("-").

Пример:
  fieldsync enqueue inspection UPDATE '{"inspection_id":"i-1","job_id":"j-1","results":{"pressure":"ok"}}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		payload, err := readPayload(args)
		if err != nil {
			return err
		}

		agent := app.Agent()
		id, err := agent.Enqueue(cmd.Context(), mutation.Resource(args[0]), mutation.Operation(args[1]), payload)
		if err != nil {
			return fmt.Errorf("ошибка добавления в очередь: %w", err)
		}
		fmt.Printf("✓ В очереди: %s\n", id)

		if syncNow {
			res, err := agent.Flush(cmd.Context())
			if err != nil {
				fmt.Printf("⚠️  Синхронизация не выполнена: %v\n", err)
				fmt.Println("Изменение сохранено и будет отправлено позже")
				return nil
			}
			fmt.Printf("✓ Отправлено: %d, применено: %d, ошибок: %d\n", res.Submitted, res.Completed, res.Failed)
		}
		return nil
	},
}

func readPayload(args []string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case payloadFile != "":
		data, err = os.ReadFile(payloadFile)
	case len(args) == 3 && args[2] != "-":
		data = []byte(args[2])
	default:
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload не является корректным JSON")
	}
	return json.RawMessage(data), nil
}

func init() {
	EnqueueCmd.Flags().StringVarP(&payloadFile, "file", "f", "", "файл с JSON payload")
	EnqueueCmd.Flags().BoolVar(&syncNow, "sync", false, "сразу попытаться отправить очередь")
}
