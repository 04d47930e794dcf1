package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mealplan/internal/domain"
	"mealplan/internal/sse"
)

var errOverflow = errors.New("event stream overflowed")

type apiError struct {
	Status  int
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, hc *http.Client) *apiClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &apiClient{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) start(ctx context.Context, cfg domain.BatchConfig) (string, error) {
	var resp struct {
		BatchID string `json:"batchId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/batches", cfg, &resp); err != nil {
		return "", err
	}
	return resp.BatchID, nil
}

func (c *apiClient) get(ctx context.Context, id string) (domain.BatchJob, error) {
	var job domain.BatchJob
	err := c.do(ctx, http.MethodGet, "/v1/batches/"+id, nil, &job)
	return job, err
}

func (c *apiClient) abort(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/batches/"+id+"/abort", nil, nil)
}

func (c *apiClient) list(ctx context.Context, all bool) ([]domain.BatchJob, error) {
	var resp struct {
		Batches []domain.BatchJob `json:"batches"`
	}
	path := "/v1/batches"
	if all {
		path += "?all=true"
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Batches, err
}

// tail prints each progress event until the stream ends. It returns the last
// event seen, which is the terminal one unless the stream was cut short.
func (c *apiClient) tail(ctx context.Context, id string, out io.Writer) (*domain.ProgressEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/batches/"+id+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return nil, apiErr
	}

	// Cancelling on return stops the reader and closes the body.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var last *domain.ProgressEvent
	for rec := range sse.ReadEvents(readCtx, resp.Body) {
		if rec.Err != nil {
			return last, rec.Err
		}
		if rec.Name == "overflow" {
			return last, errOverflow
		}
		var ev domain.ProgressEvent
		if err := json.Unmarshal([]byte(rec.Data), &ev); err != nil {
			return last, fmt.Errorf("decode event %s: %w", rec.ID, err)
		}
		printEvent(out, ev)
		last = &ev
	}
	return last, ctx.Err()
}

func printEvent(out io.Writer, ev domain.ProgressEvent) {
	c := ev.Counts
	line := fmt.Sprintf("[%4d] %-14s %-12s ok=%d failed=%d inflight=%d/%d",
		ev.Sequence, ev.Status, ev.Agent, c.Succeeded, c.Failed, c.InFlight, c.Total)
	if ev.TaskID != "" {
		line += " task=" + ev.TaskID
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	fmt.Fprintln(out, line)
}

func printJob(out io.Writer, j domain.BatchJob) {
	fmt.Fprintf(out, "%s  %-8s  %-5s  ok=%d failed=%d total=%d",
		j.ID, j.Status, j.Config.Mode, j.Counts.Succeeded, j.Counts.Failed, j.Counts.Total)
	if j.Error != "" {
		fmt.Fprintf(out, "  error=%q", j.Error)
	}
	fmt.Fprintln(out)
}
