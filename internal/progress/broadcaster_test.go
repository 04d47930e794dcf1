package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

type captureSink struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (c *captureSink) Send(ev domain.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func drain(t *testing.T, sub *Subscription) []domain.ProgressEvent {
	t.Helper()
	var out []domain.ProgressEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for subscription to close")
		}
	}
}

func item(status domain.EventStatus) domain.ProgressEvent {
	return domain.ProgressEvent{Agent: domain.CoordinatorAgent, Status: status}
}

func TestPublishAssignsSequence(t *testing.T) {
	b := New(Options{})
	b.Open("b1")

	for i := 0; i < 3; i++ {
		ev, err := b.Publish("b1", item(domain.EventInProgress))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), ev.Sequence)
		assert.Equal(t, "b1", ev.BatchID)
		assert.False(t, ev.EmittedAt.IsZero())
	}

	events, err := b.Events("b1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSubscriberReceivesInOrderAndClosesAfterTerminal(t *testing.T) {
	sink := &captureSink{}
	b := New(Options{Sink: sink})
	b.Open("b1")

	_, err := b.Publish("b1", item(domain.EventStarted))
	require.NoError(t, err)

	sub, err := b.Subscribe("b1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub.SinceSequence)

	for i := 0; i < 5; i++ {
		_, err := b.Publish("b1", item(domain.EventItemSucceeded))
		require.NoError(t, err)
	}
	_, err = b.Publish("b1", item(domain.EventComplete))
	require.NoError(t, err)

	got := drain(t, sub)
	require.Len(t, got, 6, "late joiner gets no replay")
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
	assert.Equal(t, domain.EventComplete, got[len(got)-1].Status)
	assert.NoError(t, sub.Err())
	assert.Len(t, sink.events, 7)

	_, err = b.Publish("b1", item(domain.EventItemFailed))
	assert.ErrorIs(t, err, domain.ErrBatchFinished)
}

func TestSubscribeAfterFinishIsClosed(t *testing.T) {
	b := New(Options{})
	b.Open("b1")
	_, err := b.Publish("b1", item(domain.EventAborted))
	require.NoError(t, err)

	sub, err := b.Subscribe("b1")
	require.NoError(t, err)
	assert.Empty(t, drain(t, sub))
	assert.NoError(t, sub.Err())
}

func TestOverflowDisconnectsSlowSubscriber(t *testing.T) {
	b := New(Options{Buffer: 2})
	b.Open("b1")

	slow, err := b.Subscribe("b1")
	require.NoError(t, err)
	fast, err := b.Subscribe("b1")
	require.NoError(t, err)

	var fastGot []domain.ProgressEvent
	for i := 0; i < 4; i++ {
		_, err := b.Publish("b1", item(domain.EventInProgress))
		require.NoError(t, err)
		fastGot = append(fastGot, <-fast.Events())
	}

	got := drain(t, slow)
	assert.Len(t, got, 2)
	assert.ErrorIs(t, slow.Err(), domain.ErrSubscriberOverflow)
	assert.Len(t, fastGot, 4)

	b.Unsubscribe(fast)
	_, ok := <-fast.Events()
	assert.False(t, ok)
	assert.NoError(t, fast.Err())
}

func TestUnknownBatch(t *testing.T) {
	b := New(Options{})
	_, err := b.Subscribe("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.Publish("nope", item(domain.EventStarted))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b.Open("b1")
	b.Drop("b1")
	_, err = b.Events("b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublishedEventIsIsolatedFromCaller(t *testing.T) {
	b := New(Options{})
	b.Open("b1")
	payload := map[string]any{"attempt": 1}
	_, err := b.Publish("b1", domain.ProgressEvent{Status: domain.EventInProgress, Payload: payload})
	require.NoError(t, err)
	payload["attempt"] = 2

	events, err := b.Events("b1")
	require.NoError(t, err)
	assert.Equal(t, 1, events[0].Payload["attempt"])
}

func TestConcurrentPublishersKeepSequenceDense(t *testing.T) {
	b := New(Options{Buffer: 1024})
	b.Open("b1")
	sub, err := b.Subscribe("b1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = b.Publish("b1", item(domain.EventInProgress))
			}
		}()
	}
	wg.Wait()
	_, err = b.Publish("b1", item(domain.EventComplete))
	require.NoError(t, err)

	got := drain(t, sub)
	require.Len(t, got, 401)
	for i, ev := range got {
		assert.Equal(t, uint64(i), ev.Sequence)
	}
}
