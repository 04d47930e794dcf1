package mcptools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
	"mealplan/internal/metrics"
)

// fakeOrchestrator is a test double for the batch coordinator.
type fakeOrchestrator struct {
	mu   sync.Mutex
	jobs []domain.BatchJob
}

func (f *fakeOrchestrator) StartBatch(_ context.Context, cfg domain.BatchConfig) (string, error) {
	if cfg.Count < 1 || cfg.Count > 50 {
		return "", &domain.ValidationError{Field: "count", Min: 1, Max: 50, Got: cfg.Count}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "batch-" + string(rune('a'+len(f.jobs)))
	f.jobs = append(f.jobs, domain.BatchJob{
		ID: id, Config: cfg, Status: domain.BatchStatusQueued,
		Counts: domain.Counts{Total: cfg.Count}, CreatedAt: time.Now(),
	})
	return id, nil
}

func (f *fakeOrchestrator) Progress(id string) (domain.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return domain.BatchJob{}, domain.ErrNotFound
}

func (f *fakeOrchestrator) Get(id string) (domain.BatchJob, error) { return f.Progress(id) }

func (f *fakeOrchestrator) Abort(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			if f.jobs[i].Status.IsTerminal() {
				return domain.ErrBatchFinished
			}
			f.jobs[i].Status = domain.BatchStatusAborted
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeOrchestrator) List(includeFinished bool) []domain.BatchJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.BatchJob
	for _, j := range f.jobs {
		if includeFinished || !j.Status.IsTerminal() {
			out = append(out, j)
		}
	}
	return out
}

func setupSession(t *testing.T) (*mcp.ClientSession, *fakeOrchestrator) {
	t.Helper()
	orch := &fakeOrchestrator{}
	server := NewServer(NewService(orch, metrics.NewAggregator(listAll{orch})))

	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session, orch
}

type listAll struct{ *fakeOrchestrator }

func (l listAll) List() []domain.BatchJob { return l.fakeOrchestrator.List(true) }

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, "tool returned an error: %+v", result.Content)
	require.NotNil(t, result.StructuredContent)
	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListTools(t *testing.T) {
	session, _ := setupSession(t)
	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"abort_batch", "batch_metrics", "get_batch_progress", "list_active_batches", "start_batch"}, names)
}

func TestStartAndInspectBatch(t *testing.T) {
	session, orch := setupSession(t)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "start_batch",
		Arguments: StartBatchInput{Count: 3, Mode: "single", DietaryTags: []string{"vegan"}},
	})
	require.NoError(t, err)
	started := decode[StartBatchOutput](t, result)
	assert.Equal(t, "queued", started.Status)
	require.Len(t, orch.jobs, 1)
	assert.Equal(t, []string{"vegan"}, orch.jobs[0].Config.Recipe.DietaryTags)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_batch_progress",
		Arguments: BatchIDInput{BatchID: started.BatchID},
	})
	require.NoError(t, err)
	summary := decode[BatchSummary](t, result)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, "single", summary.Mode)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "abort_batch",
		Arguments: BatchIDInput{BatchID: started.BatchID},
	})
	require.NoError(t, err)
	assert.Equal(t, "aborted", decode[BatchSummary](t, result).Status)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "list_active_batches",
		Arguments: ListBatchesInput{},
	})
	require.NoError(t, err)
	assert.Empty(t, decode[ListBatchesOutput](t, result).Batches)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "batch_metrics",
		Arguments: MetricsInput{},
	})
	require.NoError(t, err)
	m := decode[MetricsOutput](t, result)
	assert.Equal(t, 0, m.ActiveBatchCount)
	assert.Equal(t, 1, m.ByStatus["aborted"])
}

func TestToolErrors(t *testing.T) {
	session, _ := setupSession(t)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_batch_progress",
		Arguments: BatchIDInput{BatchID: "missing"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "start_batch",
		Arguments: StartBatchInput{Count: 0, Mode: "single"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
