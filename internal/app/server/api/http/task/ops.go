package task

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) claimOp() huma.Operation {
	return huma.Operation{
		OperationID: "task-claim",
		Method:      http.MethodPost,
		Path:        "/api/v1/tasks/{taskID}/claim",
		Summary:     "Захватить задачу",
		Description: "Выдает или продлевает аренду задачи. Если задача занята другим, возвращает claimed=false и текущего держателя.",
		Tags:        []string{"tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: h.middleware,
	}
}

func (h *Handler) releaseOp() huma.Operation {
	return huma.Operation{
		OperationID: "task-release",
		Method:      http.MethodPost,
		Path:        "/api/v1/tasks/{taskID}/release",
		Summary:     "Освободить задачу",
		Description: "Снимает аренду, если она принадлежит пользователю. Повторный вызов безопасен.",
		Tags:        []string{"tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: h.middleware,
	}
}

func (h *Handler) getClaimOp() huma.Operation {
	return huma.Operation{
		OperationID: "task-get-claim",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks/{taskID}/claim",
		Summary:     "Состояние аренды",
		Tags:        []string{"tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: h.middleware,
	}
}
