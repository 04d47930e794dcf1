package domain

import (
	"slices"
	"time"
)

// BatchMode selects the count ceiling applied to a generation request.
type BatchMode string

const (
	BatchModeSingle BatchMode = "single"
	BatchModeBulk   BatchMode = "bulk"
	BatchModeBMAD   BatchMode = "bmad"
)

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusQueued   BatchStatus = "queued"
	BatchStatusRunning  BatchStatus = "running"
	BatchStatusComplete BatchStatus = "complete"
	BatchStatusError    BatchStatus = "error"
	BatchStatusAborted  BatchStatus = "aborted"
)

// IsTerminal reports whether no further transitions are possible.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusComplete, BatchStatusError, BatchStatusAborted:
		return true
	default:
		return false
	}
}

// BatchConfig is the immutable snapshot of a generation request.
type BatchConfig struct {
	Count                 int        `json:"count"`
	Mode                  BatchMode  `json:"mode"`
	Recipe                RecipeSpec `json:"recipe"`
	EnableImageGeneration bool       `json:"enableImageGeneration"`
	EnableStorage         bool       `json:"enableStorage"`
	EnableValidation      bool       `json:"enableValidation"`
	Concurrency           int        `json:"concurrency,omitempty"`
}

// Counts holds the running totals of one batch.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	InFlight  int `json:"inFlight"`
}

// Done reports whether every task has reached a terminal outcome.
func (c Counts) Done() bool {
	return c.InFlight == 0 && c.Succeeded+c.Failed == c.Total
}

// BatchJob encapsulates the lifecycle of one recipe generation batch.
type BatchJob struct {
	ID          string      `json:"batchId"`
	Config      BatchConfig `json:"config"`
	Status      BatchStatus `json:"status"`
	Counts      Counts      `json:"counts"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no mutable memory with j.
func (j BatchJob) Clone() BatchJob {
	out := j
	out.Config.Recipe.DietaryTags = slices.Clone(j.Config.Recipe.DietaryTags)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
