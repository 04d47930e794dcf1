// Package metrics derives service-level figures from the batch registry.
package metrics

import (
	"time"

	"mealplan/internal/domain"
)

// Source is the read side of the batch registry.
type Source interface {
	Get(id string) (domain.BatchJob, error)
	List() []domain.BatchJob
}

// Totals summarises every batch the registry still knows about.
type Totals struct {
	Batches     int                        `json:"batches"`
	ByStatus    map[domain.BatchStatus]int `json:"byStatus"`
	Recipes     int                        `json:"recipes"`
	Succeeded   int                        `json:"succeeded"`
	Failed      int                        `json:"failed"`
	SuccessRate float64                    `json:"successRate"`
}

// Snapshot is the progress view of one batch.
type Snapshot struct {
	BatchID   string             `json:"batchId"`
	Status    domain.BatchStatus `json:"status"`
	Counts    domain.Counts      `json:"counts"`
	Progress  float64            `json:"progress"`
	ElapsedMS int64              `json:"elapsedMs"`
}

// Aggregator computes metrics on demand; it holds no state of its own.
type Aggregator struct {
	src Source
	now func() time.Time
}

// NewAggregator returns an aggregator reading from src.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src, now: time.Now}
}

// ActiveBatchCount is the number of batches that are queued or running.
func (a *Aggregator) ActiveBatchCount() int {
	n := 0
	for _, j := range a.src.List() {
		if !j.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// HistoricalTotals adds up recipe outcomes across known batches.
func (a *Aggregator) HistoricalTotals() Totals {
	t := Totals{ByStatus: make(map[domain.BatchStatus]int)}
	for _, j := range a.src.List() {
		t.Batches++
		t.ByStatus[j.Status]++
		t.Recipes += j.Counts.Total
		t.Succeeded += j.Counts.Succeeded
		t.Failed += j.Counts.Failed
	}
	if done := t.Succeeded + t.Failed; done > 0 {
		t.SuccessRate = float64(t.Succeeded) / float64(done)
	}
	return t
}

// BatchSnapshot reports the progress of one batch.
func (a *Aggregator) BatchSnapshot(id string) (Snapshot, error) {
	j, err := a.src.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{BatchID: j.ID, Status: j.Status, Counts: j.Counts}
	if j.Counts.Total > 0 {
		s.Progress = float64(j.Counts.Succeeded+j.Counts.Failed) / float64(j.Counts.Total)
	}
	if j.StartedAt != nil {
		end := a.now()
		if j.CompletedAt != nil {
			end = *j.CompletedAt
		}
		s.ElapsedMS = end.Sub(*j.StartedAt).Milliseconds()
	}
	return s, nil
}
