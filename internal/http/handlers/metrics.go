package handlers

import (
	"net/http"

	"mealplan/internal/metrics"
)

type metricsResponse struct {
	ActiveBatchCount int            `json:"activeBatchCount"`
	HistoricalTotals metrics.Totals `json:"historicalTotals"`
}

func (a *App) Metrics(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, metricsResponse{
		ActiveBatchCount: a.Aggregator.ActiveBatchCount(),
		HistoricalTotals: a.Aggregator.HistoricalTotals(),
	})
}
