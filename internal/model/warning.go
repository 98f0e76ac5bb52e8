package model

import "time"

// Warning is a flagged event persisted in the warnings store. The store
// assigns the numeric ID; EventID is the upstream event ID and is unique,
// which is what makes re-insertion idempotent.
type Warning struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	Category  string    `json:"warning_type"`
	Payload   RawEvent  `json:"payload"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	Processed bool      `json:"has_been_processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is the enrichment attached to a warning before delivery.
type Analysis struct {
	RootCause []string `json:"root_cause"`
	Impact    []string `json:"impact"`
	NextSteps []string `json:"next_steps"`
}
