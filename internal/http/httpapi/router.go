package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mealplan/internal/http/handlers"
	"mealplan/internal/infra"
	"mealplan/internal/middleware"
)

// Options configures the router's cross-cutting concerns.
type Options struct {
	Logger          infra.Logger
	CORSOrigins     []string
	Locales         []string
	RateLimitPerMin int
	// StaticDir serves stored images under /static when set.
	StaticDir string
	// MCP is mounted at /mcp when set.
	MCP stdhttp.Handler
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID", "X-Locale", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Location"},
			MaxAge:         300,
		}),
		middleware.Locale(opts.Locales...),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/metrics", app.Metrics)

	r.Route("/v1/batches", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.CreateBatch)
		r.Get("/", app.ListBatches)
		r.Get("/{id}", app.GetBatch)
		r.Post("/{id}/abort", app.AbortBatch)
		r.Get("/{id}/events", app.BatchEvents)
		r.Get("/{id}/recipes", app.BatchRecipes)
	})

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}
	if opts.StaticDir != "" {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
