package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

func sum(b []byte) string {
	h := blake2b.Sum256(b)
	return hex.EncodeToString(h[:])
}

// PayloadHash хэширует детали события.
func PayloadHash(details map[string]any) string {
	b, _ := json.Marshal(details)
	return sum(b)
}

// ComputeHash вычисляет EventHash по полям события и PrevHash.
func ComputeHash(e Event) string {
	b, _ := json.Marshal(map[string]any{
		"kind":         e.Kind,
		"actor_id":     e.ActorID,
		"subject":      e.Subject,
		"payload_hash": e.PayloadHash,
		"prev_hash":    e.PrevHash,
		"created_at":   e.CreatedAt.UnixNano(),
	})
	return sum(b)
}

// Verify проверяет непрерывность цепочки. events должны идти в порядке записи.
func Verify(events []Event) error {
	for i, e := range events {
		if i > 0 && e.PrevHash != events[i-1].EventHash {
			return fmt.Errorf("%w: event %d does not link to %d", ErrBrokenChain, e.ID, events[i-1].ID)
		}
		if ComputeHash(e) != e.EventHash {
			return fmt.Errorf("%w: event %d hash mismatch", ErrBrokenChain, e.ID)
		}
	}
	return nil
}
