package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/adapter/repo"
	"mealplan/internal/batch"
	"mealplan/internal/domain"
	"mealplan/internal/http/handlers"
	"mealplan/internal/metrics"
	"mealplan/internal/pipeline"
	"mealplan/internal/progress"
	"mealplan/internal/providers/genai"
	"mealplan/internal/providers/nutrition"
	"mealplan/internal/stage"
)

type testEnv struct {
	srv     *httptest.Server
	coord   *batch.Coordinator
	recipes *repo.MemoryRecipeRepository
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	client, err := genai.NewClient(genai.Options{})
	require.NoError(t, err)
	recipes := repo.NewMemoryRecipeRepository()

	b := progress.New(progress.Options{Logger: logger})
	reg := batch.NewRegistry(batch.RegistryOptions{OnEvict: b.Drop, Logger: logger})
	coord, err := batch.NewCoordinator(batch.Options{
		Limits: batch.Limits{MaxSingle: 50, MaxBulk: 100, MaxBMAD: 500, DefaultConcurrency: 2, MaxConcurrency: 4},
		Stages: stage.Set{
			Content:     stage.Content{Writer: client},
			Nutrition:   stage.Nutrition{Checker: nutrition.NewValidator()},
			Persistence: stage.Persistence{Repo: recipes},
		},
		Pipeline:    pipeline.Options{RetryBudget: 1, RetryBase: time.Millisecond},
		Registry:    reg,
		Broadcaster: b,
		Logger:      logger,
	})
	require.NoError(t, err)

	app := &handlers.App{
		Batches:    coord,
		Aggregator: metrics.NewAggregator(reg),
		Recipes:    recipes,
		Logger:     logger,
	}
	srv := httptest.NewServer(NewRouter(app, Options{
		Logger:          logger,
		CORSOrigins:     []string{"*"},
		Locales:         []string{"en", "id"},
		RateLimitPerMin: rateLimit,
	}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &testEnv{srv: srv, coord: coord, recipes: recipes}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Post(env.srv.URL+"/v1/batches", "application/json",
		strings.NewReader(`{"count":3,"mode":"single","enableValidation":true,"recipe":{"mealType":"breakfast"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	created := decode[map[string]string](t, resp)
	id := created["batchId"]
	require.NotEmpty(t, id)
	assert.Equal(t, "queued", created["status"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.coord.Wait(ctx, id))

	resp, err = http.Get(env.srv.URL + "/v1/batches/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode[domain.BatchJob](t, resp)
	assert.Equal(t, domain.BatchStatusComplete, job.Status)
	assert.Equal(t, domain.Counts{Total: 3, Succeeded: 3}, job.Counts)

	resp, err = http.Get(env.srv.URL + "/v1/batches/" + id + "/recipes")
	require.NoError(t, err)
	recipes := decode[struct {
		Recipes []domain.RecipeArtifact `json:"recipes"`
	}](t, resp)
	assert.Len(t, recipes.Recipes, 3)
	assert.Equal(t, 3, env.recipes.Len())

	resp, err = http.Post(env.srv.URL+"/v1/batches/"+id+"/abort", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A finished batch yields an empty stream rather than a replay.
	resp, err = http.Get(env.srv.URL + "/v1/batches/" + id + "/events")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, strings.TrimSpace(string(body)))

	resp, err = http.Get(env.srv.URL + "/v1/metrics")
	require.NoError(t, err)
	m := decode[struct {
		ActiveBatchCount int            `json:"activeBatchCount"`
		HistoricalTotals metrics.Totals `json:"historicalTotals"`
	}](t, resp)
	assert.Equal(t, 0, m.ActiveBatchCount)
	assert.Equal(t, 3, m.HistoricalTotals.Succeeded)
}

func TestCreateBatchRejectsOutOfRangeCount(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Post(env.srv.URL+"/v1/batches", "application/json",
		strings.NewReader(`{"count":51,"mode":"single"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Contains(t, body["message"], "50")

	resp, err = http.Get(env.srv.URL + "/v1/batches")
	require.NoError(t, err)
	list := decode[struct {
		Batches []domain.BatchJob `json:"batches"`
	}](t, resp)
	assert.Empty(t, list.Batches)
}

func TestCreateBatchIsRateLimited(t *testing.T) {
	env := newTestEnv(t, 1)

	post := func() int {
		resp, err := http.Post(env.srv.URL+"/v1/batches", "application/json",
			strings.NewReader(`{"count":1,"mode":"single"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusAccepted, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	resp, err := http.Get(env.srv.URL + "/v1/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreflightAllowed(t *testing.T) {
	env := newTestEnv(t, 0)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/v1/batches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://planner.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}
