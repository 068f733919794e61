package claim

import "time"

// Claim - аренда задачи одним пользователем на ограниченное время
type Claim struct {
	TaskID    string    `json:"task_id"`
	HolderID  string    `json:"holder_id"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active сообщает, действует ли аренда в момент now.
func (c Claim) Active(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Acquisition - итог атомарной попытки захвата
type Acquisition struct {
	// Current - аренда после попытки (своя или чужая).
	Current Claim
	// Acquired сообщает, что Current принадлежит запросившему.
	Acquired bool
	// Previous - строка, существовавшая до попытки.
	Previous *Claim
}

// Result - ответ на запрос захвата
type Result struct {
	Claimed   bool      `json:"claimed"`
	ExpiresAt time.Time `json:"expires_at"`
	ClaimedBy string    `json:"claimed_by,omitempty"`
}

// Clock - источник времени. Подменяется в тестах.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type ServiceConfig struct {
	LeaseDuration time.Duration
}
