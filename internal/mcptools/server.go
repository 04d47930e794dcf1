// Package mcptools exposes the batch orchestrator as MCP tools.
package mcptools

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mealplan/internal/domain"
	"mealplan/internal/metrics"
)

const version = "0.1.0"

// Orchestrator is the part of the batch coordinator the tools drive.
type Orchestrator interface {
	StartBatch(ctx context.Context, cfg domain.BatchConfig) (string, error)
	Progress(batchID string) (domain.BatchJob, error)
	Abort(batchID string) error
	List(includeFinished bool) []domain.BatchJob
}

// Service handles MCP tool calls.
type Service struct {
	orch    Orchestrator
	metrics *metrics.Aggregator
}

// NewService wires a Service.
func NewService(orch Orchestrator, agg *metrics.Aggregator) *Service {
	return &Service{orch: orch, metrics: agg}
}

// NewServer creates an MCP server with the batch tools registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "recipe-batches",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_batch",
		Description: "Start generating a batch of recipes. Returns the batch id immediately.",
	}, svc.StartBatch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_batch_progress",
		Description: "Get the status and running counts of a batch.",
	}, svc.GetBatchProgress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abort_batch",
		Description: "Stop dispatching new recipes for a running batch.",
	}, svc.AbortBatch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_active_batches",
		Description: "List queued and running batches, optionally including retained finished ones.",
	}, svc.ListBatches)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "batch_metrics",
		Description: "Report active batch count and cumulative recipe outcomes.",
	}, svc.Metrics)

	return server
}

// NewHTTPHandler serves server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func summarize(j domain.BatchJob) BatchSummary {
	s := BatchSummary{
		BatchID:   j.ID,
		Mode:      string(j.Config.Mode),
		Status:    string(j.Status),
		Total:     j.Counts.Total,
		Succeeded: j.Counts.Succeeded,
		Failed:    j.Counts.Failed,
		InFlight:  j.Counts.InFlight,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		s.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return s
}
