// Package sse writes and reads Server-Sent Events streams.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter wraps w. If w does not implement http.Flusher, writes still
// succeed but may be buffered.
func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *Writer) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteEvent serializes data as JSON and writes one record:
//
//	id: <id>
//	event: <name>
//	data: <json>
//
// Empty id or name lines are omitted.
func (sw *Writer) WriteEvent(id, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	var frame []byte
	if id != "" {
		frame = fmt.Appendf(frame, "id: %s\n", id)
	}
	if name != "" {
		frame = fmt.Appendf(frame, "event: %s\n", name)
	}
	frame = fmt.Appendf(frame, "data: %s\n\n", payload)
	if _, err := sw.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	sw.flush()
	return nil
}

// WriteComment writes a comment line, used as a keep-alive.
func (sw *Writer) WriteComment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *Writer) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
