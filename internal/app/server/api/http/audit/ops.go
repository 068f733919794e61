package audit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "audit-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit",
		Summary:     "Журнал аудита",
		Description: "События применения мутаций и аренды задач, новые первыми",
		Tags:        []string{"audit"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: h.middleware,
	}
}
