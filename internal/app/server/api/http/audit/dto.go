package audit

import "fieldsync/internal/domain/audit"

type listInput struct {
	ActorID string `query:"actor_id" required:"false"`
	Subject string `query:"subject" required:"false" doc:"ID задачи или мутации"`
	Kind    string `query:"kind" required:"false" example:"claim.acquired"`
	Limit   int    `query:"limit" required:"false" minimum:"0" maximum:"500" default:"50"`
	Offset  int    `query:"offset" required:"false" minimum:"0"`
}

type listOutput struct {
	Body ListResponse
}

type ListResponse struct {
	Events []audit.Event `json:"events"`
}
