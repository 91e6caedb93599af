package domain

import "time"

// Target is a monitored generation model (or any other upstream the client
// calls). The Health field is a cached snapshot; the metric log is the
// source of truth.
type Target struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Active    bool         `json:"active"`
	Health    *ModelHealth `json:"health,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
