package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
	"mealplan/internal/metrics"
	"mealplan/internal/progress"
)

// BatchService is the orchestration surface the HTTP layer drives.
type BatchService interface {
	StartBatch(ctx context.Context, cfg domain.BatchConfig) (string, error)
	Progress(batchID string) (domain.BatchJob, error)
	Abort(batchID string) error
	List(includeFinished bool) []domain.BatchJob
	Subscribe(batchID string) (*progress.Subscription, error)
	Unsubscribe(sub *progress.Subscription)
}

type App struct {
	Batches    BatchService
	Aggregator *metrics.Aggregator
	Recipes    domain.RecipeRepository
	Logger     infra.Logger
	KeepAlive  time.Duration
}

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, errorResponse{Error: kind, Message: msg})
}

// writeError maps domain errors onto HTTP status codes.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "invalid_request", verr.Error())
	case errors.Is(err, domain.ErrInvalidMode):
		a.error(w, http.StatusBadRequest, "invalid_request", "mode must be one of single, bulk, bmad")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
	case errors.Is(err, domain.ErrBatchFinished):
		a.error(w, http.StatusConflict, "batch_finished", err.Error())
	case errors.Is(err, domain.ErrShuttingDown):
		a.error(w, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
