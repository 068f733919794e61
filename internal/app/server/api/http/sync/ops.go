package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) submitBatchOp() huma.Operation {
	return huma.Operation{
		OperationID:   "sync-submit-batch",
		Method:        http.MethodPost,
		Path:          "/api/v1/sync/batch",
		Summary:       "Отправить пакет мутаций",
		Description:   "Применяет мутации по порядку, каждую в своей транзакции. Повторная отправка того же ID возвращает прежний результат.",
		Tags:          []string{"sync"},
		Security:      []map[string][]string{{"bearer": {}}},
		Middlewares:   h.middleware,
		DefaultStatus: http.StatusOK,
	}
}

func (h *Handler) getLedgerOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-get-ledger",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/ledger/{id}",
		Summary:     "Получить запись реестра",
		Description: "Возвращает запись о примененной мутации или 404",
		Tags:        []string{"sync"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: h.middleware,
	}
}
