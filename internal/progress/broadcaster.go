// Package progress keeps the ordered event log of every batch and fans each
// published event out to live subscribers.
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Sink mirrors published events outside the process. Send must not block.
type Sink interface {
	Send(ev domain.ProgressEvent)
}

// Options configures a Broadcaster.
type Options struct {
	Buffer int
	Sink   Sink
	Logger infra.Logger
	Now    func() time.Time
}

// Broadcaster owns one append-only log per batch. Publishing never blocks:
// a subscriber whose buffer is full is disconnected with
// domain.ErrSubscriberOverflow.
type Broadcaster struct {
	mu     sync.RWMutex
	logs   map[string]*batchLog
	buffer int
	sink   Sink
	now    func() time.Time
	logger zerolog.Logger
}

type batchLog struct {
	mu       sync.Mutex
	events   []domain.ProgressEvent
	next     uint64
	finished bool
	subs     map[*Subscription]struct{}
}

// New returns an empty Broadcaster.
func New(opts Options) *Broadcaster {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{
		logs:   make(map[string]*batchLog),
		buffer: opts.Buffer,
		sink:   opts.Sink,
		now:    opts.Now,
		logger: infra.Component(opts.Logger, "progress"),
	}
}

// Open creates the event log for a batch. Opening an existing log is a no-op.
func (b *Broadcaster) Open(batchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.logs[batchID]; ok {
		return
	}
	b.logs[batchID] = &batchLog{subs: make(map[*Subscription]struct{})}
}

func (b *Broadcaster) log(batchID string) (*batchLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.logs[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l, nil
}

// Publish stamps ev with the next sequence number and emission time, appends
// it to the batch log and delivers it to every subscriber. A terminal event
// closes the log and all its subscriptions.
func (b *Broadcaster) Publish(batchID string, ev domain.ProgressEvent) (domain.ProgressEvent, error) {
	l, err := b.log(batchID)
	if err != nil {
		return domain.ProgressEvent{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return domain.ProgressEvent{}, domain.ErrBatchFinished
	}

	ev.BatchID = batchID
	ev.Sequence = l.next
	ev.EmittedAt = b.now().UTC()
	ev.Payload = clonePayload(ev.Payload)
	l.next++
	l.events = append(l.events, ev)

	for sub := range l.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(l.subs, sub)
			sub.close(domain.ErrSubscriberOverflow)
			b.logger.Warn().
				Str("batch_id", batchID).
				Uint64("sequence", ev.Sequence).
				Msg("subscriber overflowed, disconnecting")
		}
	}

	if ev.Status.IsTerminal() {
		l.finished = true
		for sub := range l.subs {
			delete(l.subs, sub)
			sub.close(nil)
		}
	}

	if b.sink != nil {
		b.sink.Send(ev)
	}
	return ev, nil
}

// Subscribe registers a live observer. Events published before the call are
// not replayed. Subscribing to a finished batch returns a closed
// subscription.
func (b *Broadcaster) Subscribe(batchID string) (*Subscription, error) {
	l, err := b.log(batchID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sub := &Subscription{
		BatchID:       batchID,
		SinceSequence: l.next,
		ch:            make(chan domain.ProgressEvent, b.buffer),
	}
	if l.finished {
		sub.close(nil)
		return sub, nil
	}
	l.subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe detaches sub and closes its channel. It is safe to call more
// than once and after the batch log has been dropped.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if l, err := b.log(sub.BatchID); err == nil {
		l.mu.Lock()
		delete(l.subs, sub)
		l.mu.Unlock()
	}
	sub.close(nil)
}

// Events returns a copy of the batch log.
func (b *Broadcaster) Events(batchID string) ([]domain.ProgressEvent, error) {
	l, err := b.log(batchID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ProgressEvent, len(l.events))
	for i, ev := range l.events {
		ev.Payload = clonePayload(ev.Payload)
		out[i] = ev
	}
	return out, nil
}

// Drop forgets a batch log. Subscriptions still attached keep whatever they
// have buffered; later Subscribe calls fail with domain.ErrNotFound.
func (b *Broadcaster) Drop(batchID string) {
	b.mu.Lock()
	delete(b.logs, batchID)
	b.mu.Unlock()
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
