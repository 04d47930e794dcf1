package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

type memoryWriter struct {
	mu     sync.Mutex
	msgs   []kgo.Message
	fail   error
	closed bool
}

func (w *memoryWriter) WriteMessages(ctx context.Context, msgs ...kgo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProgressProducerMirrorsEventsInOrder(t *testing.T) {
	w := &memoryWriter{}
	p := newProducer(w, zerolog.New(io.Discard))

	for i := 0; i < 5; i++ {
		p.Send(domain.ProgressEvent{BatchID: "b1", Sequence: uint64(i), Status: domain.EventInProgress})
	}
	p.Send(domain.ProgressEvent{BatchID: "b1", Sequence: 5, Status: domain.EventComplete})
	require.NoError(t, p.Close())

	require.Len(t, w.msgs, 6)
	assert.True(t, w.closed)
	for i, m := range w.msgs {
		assert.Equal(t, "b1", string(m.Key))
		var ev domain.ProgressEvent
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, uint64(i), ev.Sequence)
	}
	assert.Equal(t, "complete", string(w.msgs[5].Headers[0].Value))
}

func TestProgressProducerSurvivesWriteErrors(t *testing.T) {
	w := &memoryWriter{fail: errors.New("broker down")}
	p := newProducer(w, zerolog.New(io.Discard))
	p.Send(domain.ProgressEvent{BatchID: "b1"})
	require.NoError(t, p.Close())
	assert.Empty(t, w.msgs)
	assert.Zero(t, p.Dropped())
}

func TestNewProgressProducerValidates(t *testing.T) {
	_, err := NewProgressProducer(" , ", "topic", zerolog.New(io.Discard))
	assert.Error(t, err)
	_, err = NewProgressProducer("localhost:9092", "", zerolog.New(io.Discard))
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitCSV(" a:1, ,b:2 "))
}
