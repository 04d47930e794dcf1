package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mealplan/internal/domain"
)

// StartBatch validates the request and starts a batch.
func (s *Service) StartBatch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartBatchInput,
) (*mcp.CallToolResult, StartBatchOutput, error) {
	cfg := domain.BatchConfig{
		Count: input.Count,
		Mode:  domain.BatchMode(input.Mode),
		Recipe: domain.RecipeSpec{
			MealType:    input.MealType,
			Cuisine:     input.Cuisine,
			DietaryTags: input.DietaryTags,
			MinCalories: input.MinCalories,
			MaxCalories: input.MaxCalories,
			MinProtein:  input.MinProtein,
			MaxCarbs:    input.MaxCarbs,
			MaxFat:      input.MaxFat,
			Locale:      input.Locale,
		},
		EnableImageGeneration: input.EnableImageGeneration,
		EnableStorage:         input.EnableStorage,
		EnableValidation:      input.EnableValidation,
		Concurrency:           input.Concurrency,
	}
	id, err := s.orch.StartBatch(ctx, cfg)
	if err != nil {
		return nil, StartBatchOutput{}, fmt.Errorf("start batch: %w", err)
	}
	return nil, StartBatchOutput{BatchID: id, Status: string(domain.BatchStatusQueued)}, nil
}

// GetBatchProgress reports a batch snapshot.
func (s *Service) GetBatchProgress(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input BatchIDInput,
) (*mcp.CallToolResult, BatchSummary, error) {
	job, err := s.orch.Progress(input.BatchID)
	if err != nil {
		return nil, BatchSummary{}, fmt.Errorf("batch %s: %w", input.BatchID, err)
	}
	return nil, summarize(job), nil
}

// AbortBatch requests a batch abort and returns the snapshot at that moment.
func (s *Service) AbortBatch(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input BatchIDInput,
) (*mcp.CallToolResult, BatchSummary, error) {
	if err := s.orch.Abort(input.BatchID); err != nil {
		return nil, BatchSummary{}, fmt.Errorf("abort batch %s: %w", input.BatchID, err)
	}
	job, err := s.orch.Progress(input.BatchID)
	if err != nil {
		return nil, BatchSummary{}, fmt.Errorf("batch %s: %w", input.BatchID, err)
	}
	return nil, summarize(job), nil
}

// ListBatches lists batch summaries in creation order.
func (s *Service) ListBatches(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListBatchesInput,
) (*mcp.CallToolResult, ListBatchesOutput, error) {
	jobs := s.orch.List(input.IncludeFinished)
	out := ListBatchesOutput{Batches: make([]BatchSummary, 0, len(jobs))}
	for _, j := range jobs {
		out.Batches = append(out.Batches, summarize(j))
	}
	return nil, out, nil
}

// Metrics reports aggregate figures.
func (s *Service) Metrics(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ MetricsInput,
) (*mcp.CallToolResult, MetricsOutput, error) {
	totals := s.metrics.HistoricalTotals()
	byStatus := make(map[string]int, len(totals.ByStatus))
	for status, n := range totals.ByStatus {
		byStatus[string(status)] = n
	}
	return nil, MetricsOutput{
		ActiveBatchCount: s.metrics.ActiveBatchCount(),
		Batches:          totals.Batches,
		ByStatus:         byStatus,
		Succeeded:        totals.Succeeded,
		Failed:           totals.Failed,
		SuccessRate:      totals.SuccessRate,
	}, nil
}
