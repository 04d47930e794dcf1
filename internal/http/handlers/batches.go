package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mealplan/internal/domain"
	"mealplan/internal/middleware"
)

type createBatchResponse struct {
	BatchID string             `json:"batchId"`
	Status  domain.BatchStatus `json:"status"`
}

type batchView struct {
	domain.BatchJob
	Progress  float64 `json:"progress"`
	ElapsedMS int64   `json:"elapsedMs"`
}

type batchListResponse struct {
	Batches []domain.BatchJob `json:"batches"`
}

type recipesResponse struct {
	BatchID string                  `json:"batchId"`
	Recipes []domain.RecipeArtifact `json:"recipes"`
}

func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var cfg domain.BatchConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if cfg.Recipe.Locale == "" {
		cfg.Recipe.Locale = middleware.LocaleFromContext(r.Context())
	}
	id, err := a.Batches.StartBatch(r.Context(), cfg)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/batches/"+id)
	a.json(w, http.StatusAccepted, createBatchResponse{BatchID: id, Status: domain.BatchStatusQueued})
}

func (a *App) ListBatches(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	jobs := a.Batches.List(all)
	if jobs == nil {
		jobs = []domain.BatchJob{}
	}
	a.json(w, http.StatusOK, batchListResponse{Batches: jobs})
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	view, err := a.view(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) AbortBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Batches.Abort(id); err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.view(id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, view)
}

func (a *App) BatchRecipes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Batches.Progress(id); err != nil {
		a.writeError(w, r, err)
		return
	}
	recipes, err := a.Recipes.ListByBatch(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []domain.RecipeArtifact{}
	}
	a.json(w, http.StatusOK, recipesResponse{BatchID: id, Recipes: recipes})
}

func (a *App) view(id string) (batchView, error) {
	job, err := a.Batches.Progress(id)
	if err != nil {
		return batchView{}, err
	}
	snap, err := a.Aggregator.BatchSnapshot(id)
	if err != nil {
		return batchView{}, err
	}
	return batchView{BatchJob: job, Progress: snap.Progress, ElapsedMS: snap.ElapsedMS}, nil
}
