package models

import (
	"time"
)

// WarningBatch is the result of one detection run for one disease
type WarningBatch struct {
	Disease   Disease   `json:"disease"`
	Reference *Period   `json:"reference_period,omitempty"`
	Warnings  []Warning `json:"warnings"`
	Summary   Summary   `json:"summary"`
}

// Envelope wraps a WarningBatch with processing metadata for publishing
type Envelope struct {
	Batch *WarningBatch `json:"batch"`

	// Internal processing metadata
	GeneratedAt  time.Time `json:"generated_at"`
	Node         string    `json:"node"`
	Trigger      string    `json:"trigger,omitempty"`
	RetryCount   int       `json:"retry_count"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping a warning batch
func NewEnvelope(batch *WarningBatch, node string) *Envelope {
	return &Envelope{
		Batch:        batch,
		GeneratedAt:  time.Now().UTC(),
		Node:         node,
		RetryCount:   0,
		PartitionKey: string(batch.Disease), // partition by disease for ordering
	}
}

// WithTrigger records what caused the run (schedule, refresh notice, API call)
func (e *Envelope) WithTrigger(trigger string) *Envelope {
	e.Trigger = trigger
	return e
}

// RefreshNotice is sent by the data backend when a disease's records change
type RefreshNotice struct {
	Disease Disease `json:"disease"`
	Reason  string  `json:"reason,omitempty"`
}
