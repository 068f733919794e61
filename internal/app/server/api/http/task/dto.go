package task

import (
	"time"

	"fieldsync/internal/domain/claim"
)

type taskInput struct {
	TaskID string `path:"taskID" minLength:"1" maxLength:"128" doc:"ID задачи"`
}

type claimOutput struct {
	Body claim.Result
}

type releaseOutput struct {
	Body ReleaseResponse
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}

type getClaimOutput struct {
	Body ClaimResponse
}

// ClaimResponse - текущее состояние аренды. Для свободной задачи claimed=false.
type ClaimResponse struct {
	Claimed   bool       `json:"claimed"`
	HolderID  string     `json:"holder_id,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
