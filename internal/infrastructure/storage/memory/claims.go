package memory

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/domain/claim"
)

type claimRow = claim.Claim

// ClaimRepository - CAS над картой аренд под мьютексом
type ClaimRepository struct {
	mu     sync.Mutex
	claims map[string]claimRow
}

func (r *ClaimRepository) TryAcquire(_ context.Context, taskID, actorID string, now, expiresAt time.Time) (claim.Acquisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.claims[taskID]
	var prev *claim.Claim
	if exists {
		p := cur
		prev = &p
	}

	if exists && cur.HolderID != actorID && cur.Active(now) {
		return claim.Acquisition{Current: cur, Previous: prev}, nil
	}

	next := claim.Claim{
		TaskID:    taskID,
		HolderID:  actorID,
		ClaimedAt: now,
		ExpiresAt: expiresAt,
	}
	if exists && cur.HolderID == actorID {
		next.ClaimedAt = cur.ClaimedAt
	}
	r.claims[taskID] = next

	return claim.Acquisition{Current: next, Acquired: true, Previous: prev}, nil
}

func (r *ClaimRepository) Release(_ context.Context, taskID, actorID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.claims[taskID]
	if !ok || cur.HolderID != actorID {
		return false, nil
	}
	delete(r.claims, taskID)
	return true, nil
}

func (r *ClaimRepository) Get(_ context.Context, taskID string) (*claim.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.claims[taskID]
	if !ok {
		return nil, claim.ErrNotFound
	}
	return &cur, nil
}
