package progress

import (
	"sync"

	"mealplan/internal/domain"
)

// Subscription is one observer's view of a batch event stream.
type Subscription struct {
	BatchID string
	// SinceSequence is the sequence number of the first event this
	// subscription can receive.
	SinceSequence uint64

	ch     chan domain.ProgressEvent
	mu     sync.Mutex
	closed bool
	err    error
}

// Events is closed after the terminal event, on overflow or on Unsubscribe.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.ch
}

// Err reports why the subscription closed early. It is nil for a normal
// close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
