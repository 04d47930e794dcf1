package domain

import "time"

// CoordinatorAgent is the agent name used for batch-level events.
const CoordinatorAgent = "coordinator"

// EventStatus enumerates progress event kinds.
type EventStatus string

const (
	EventStarted       EventStatus = "started"
	EventInProgress    EventStatus = "in_progress"
	EventItemSucceeded EventStatus = "item_succeeded"
	EventItemFailed    EventStatus = "item_failed"
	EventComplete      EventStatus = "complete"
	EventError         EventStatus = "error"
	EventAborted       EventStatus = "aborted"
)

// IsTerminal reports whether the status closes a batch's event log.
func (s EventStatus) IsTerminal() bool {
	return s == EventComplete || s == EventError || s == EventAborted
}

// ProgressEvent is an immutable, sequenced fact about batch progress.
type ProgressEvent struct {
	BatchID   string         `json:"batchId"`
	Sequence  uint64         `json:"sequence"`
	Agent     string         `json:"agent"`
	Status    EventStatus    `json:"status"`
	TaskID    string         `json:"taskId,omitempty"`
	Message   string         `json:"message,omitempty"`
	Counts    Counts         `json:"counts"`
	Payload   map[string]any `json:"payload,omitempty"`
	EmittedAt time.Time      `json:"emittedAt"`
}
