package entity

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Job - выезд на объект
type Job struct {
	ID           string     `json:"id"`
	Customer     string     `json:"customer"`
	SiteAddress  string     `json:"site_address"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Inspection - результаты осмотра в рамках выезда. Results хранятся по полям,
// чтобы обновления разных полей от разных техников не затирали друг друга.
type Inspection struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Results   map[string]any `json:"results"`
	UpdatedBy string         `json:"updated_by"`
	Version   int            `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Equipment - оборудование, зафиксированное на объекте
type Equipment struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Kind      string         `json:"kind"`
	Serial    string         `json:"serial"`
	Details   map[string]any `json:"details,omitempty"`
	UpdatedBy string         `json:"updated_by"`
	UpdatedAt time.Time      `json:"updated_at"`
}
