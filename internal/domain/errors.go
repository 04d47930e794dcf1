package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrProviderFailure     = errors.New("provider failure")
	ErrTransient           = errors.New("transient failure")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrBatchFinished       = errors.New("batch already finished")
	ErrSubscriberOverflow  = errors.New("subscriber buffer overflow")
	ErrNutritionOutOfRange = errors.New("nutrition out of range")
	ErrShuttingDown        = errors.New("coordinator shutting down")
	ErrInvalidMode         = errors.New("invalid batch mode")
)

// ValidationError rejects a batch request before any state is created.
type ValidationError struct {
	Field string
	Min   int
	Max   int
	Got   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: must be between %d and %d", e.Field, e.Got, e.Min, e.Max)
}

// StageError is the failure of one stage of one recipe task.
type StageError struct {
	Stage     StageName
	Cause     error
	Retryable bool
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("stage %s failed", e.Stage)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// CoordinatorFault aborts an entire batch.
type CoordinatorFault struct {
	BatchID string
	Cause   error
}

func (e *CoordinatorFault) Error() string {
	return fmt.Sprintf("batch %s: coordinator fault: %v", e.BatchID, e.Cause)
}

func (e *CoordinatorFault) Unwrap() error { return e.Cause }
