package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

func streamServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/batches", func(w http.ResponseWriter, r *http.Request) {
		var cfg domain.BatchConfig
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		if cfg.Count > 50 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request","message":"invalid count 51: must be between 1 and 50"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"batchId":"b1","status":"queued"}`))
	})
	mux.HandleFunc("GET /v1/batches/b1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = w.Write([]byte(f))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func frame(seq uint64, status domain.EventStatus, counts domain.Counts) string {
	ev := domain.ProgressEvent{BatchID: "b1", Sequence: seq, Agent: domain.CoordinatorAgent, Status: status, Counts: counts}
	data, _ := json.Marshal(ev)
	return fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, status, data)
}

func TestStartAndTail(t *testing.T) {
	srv := streamServer(t,
		frame(0, domain.EventStarted, domain.Counts{Total: 2}),
		": keepalive\n\n",
		frame(1, domain.EventItemSucceeded, domain.Counts{Total: 2, Succeeded: 1}),
		frame(2, domain.EventComplete, domain.Counts{Total: 2, Succeeded: 2}),
	)
	c := newAPIClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	id, err := c.start(ctx, domain.BatchConfig{Count: 2, Mode: domain.BatchModeSingle})
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	var out bytes.Buffer
	last, err := c.tail(ctx, id, &out)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.EventComplete, last.Status)
	assert.Equal(t, uint64(2), last.Sequence)
	assert.Contains(t, out.String(), "item_succeeded")
	assert.Contains(t, out.String(), "ok=2 failed=0")
}

func TestTailReportsOverflow(t *testing.T) {
	srv := streamServer(t,
		frame(0, domain.EventStarted, domain.Counts{Total: 9}),
		"event: overflow\ndata: {\"batchId\":\"b1\"}\n\n",
	)
	c := newAPIClient(srv.URL, srv.Client())

	last, err := c.tail(context.Background(), "b1", &bytes.Buffer{})
	assert.ErrorIs(t, err, errOverflow)
	require.NotNil(t, last)
	assert.Equal(t, domain.EventStarted, last.Status)
}

func TestStartSurfacesAPIError(t *testing.T) {
	srv := streamServer(t)
	c := newAPIClient(srv.URL, srv.Client())

	_, err := c.start(context.Background(), domain.BatchConfig{Count: 51, Mode: domain.BatchModeSingle})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_request", apiErr.Kind)
	assert.Contains(t, apiErr.Message, "between 1 and 50")
}

func TestTailUnknownBatch(t *testing.T) {
	srv := streamServer(t)
	c := newAPIClient(srv.URL, srv.Client())

	_, err := c.tail(context.Background(), "ghost", &bytes.Buffer{})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"vegan", "halal"}, splitTags(" vegan, ,halal "))
	assert.Nil(t, splitTags(""))
}
