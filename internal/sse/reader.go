package sse

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Event is one parsed record of a stream.
type Event struct {
	ID   string
	Name string
	Data string
	Err  error
}

// ReadEvents parses the stream in body and delivers records on the returned
// channel. The channel is closed when the body is exhausted, a read error
// occurs or ctx is cancelled; a read error is delivered as a final Event
// with Err set. The body is closed when reading finishes.
//
// Comment lines are skipped, multiple data lines are joined with newlines,
// and unknown fields are ignored.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var (
			cur     Event
			data    strings.Builder
			hasData bool
		)
		flush := func() bool {
			if !hasData && cur.Name == "" {
				cur = Event{}
				return true
			}
			cur.Data = data.String()
			ok := send(ctx, ch, cur)
			cur, hasData = Event{}, false
			data.Reset()
			return ok
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			if line == "" {
				if !flush() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				cur.ID = value
			case "event":
				cur.Name = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}
		if err := scanner.Err(); err != nil {
			send(ctx, ch, Event{Err: err})
			return
		}
		flush()
	}()
	return ch
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
