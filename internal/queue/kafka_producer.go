// Package queue mirrors batch progress events onto a Kafka topic.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kgo "github.com/segmentio/kafka-go"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
)

const defaultBuffer = 1024

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// ProgressProducer publishes progress events keyed by batch ID, so every
// batch's events stay ordered within one partition. Send never blocks: when
// the outbound buffer is full the event is dropped and counted.
type ProgressProducer struct {
	writer  messageWriter
	timeout time.Duration
	logger  zerolog.Logger

	ch      chan domain.ProgressEvent
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewProgressProducer connects a producer to the brokers in brokersCSV.
func NewProgressProducer(brokersCSV, topic string, logger infra.Logger) (*ProgressProducer, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("queue: at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("queue: kafka topic is required")
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, logger), nil
}

func newProducer(w messageWriter, logger infra.Logger) *ProgressProducer {
	p := &ProgressProducer{
		writer:  w,
		timeout: 3 * time.Second,
		logger:  infra.Component(logger, "kafka"),
		ch:      make(chan domain.ProgressEvent, defaultBuffer),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Send queues ev for delivery. Events sent after Close are discarded.
func (p *ProgressProducer) Send(ev domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
		p.dropped++
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (p *ProgressProducer) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close flushes queued events and closes the writer.
func (p *ProgressProducer) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
	return p.writer.Close()
}

func (p *ProgressProducer) loop() {
	defer close(p.done)
	for ev := range p.ch {
		if err := p.publish(ev); err != nil {
			p.logger.Warn().
				Err(err).
				Str("batch_id", ev.BatchID).
				Uint64("sequence", ev.Sequence).
				Msg("mirror progress event")
		}
	}
}

func (p *ProgressProducer) publish(ev domain.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, kgo.Message{
		Key:   []byte(ev.BatchID),
		Value: b,
		Time:  ev.EmittedAt,
		Headers: []kgo.Header{
			{Key: "status", Value: []byte(ev.Status)},
		},
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
