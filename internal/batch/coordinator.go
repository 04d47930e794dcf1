// Package batch owns the lifecycle of recipe generation batches: request
// validation, the worker pool that drives each task through the pipeline,
// and the single run loop that aggregates outcomes into counts and events.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
	"mealplan/internal/pipeline"
	"mealplan/internal/progress"
	"mealplan/internal/stage"
)

// Limits bounds batch sizes and parallelism.
type Limits struct {
	MaxSingle          int
	MaxBulk            int
	MaxBMAD            int
	DefaultConcurrency int
	MaxConcurrency     int
	// GlobalConcurrency caps in-flight tasks across all batches; 0 disables
	// the cap.
	GlobalConcurrency int
}

// LimitsFromConfig copies the batch limits out of the service config.
func LimitsFromConfig(cfg infra.BatchConfig) Limits {
	return Limits{
		MaxSingle:          cfg.MaxSingle,
		MaxBulk:            cfg.MaxBulk,
		MaxBMAD:            cfg.MaxBMAD,
		DefaultConcurrency: cfg.DefaultConcurrency,
		MaxConcurrency:     cfg.MaxConcurrency,
		GlobalConcurrency:  cfg.GlobalConcurrency,
	}
}

// MaxCount returns the count ceiling for mode, or 0 for an unknown mode.
func (l Limits) MaxCount(mode domain.BatchMode) int {
	switch mode {
	case domain.BatchModeSingle:
		return l.MaxSingle
	case domain.BatchModeBulk:
		return l.MaxBulk
	case domain.BatchModeBMAD:
		return l.MaxBMAD
	}
	return 0
}

func (l Limits) workers(cfg domain.BatchConfig) int {
	n := l.DefaultConcurrency
	if cfg.Concurrency > 0 {
		n = cfg.Concurrency
	}
	if l.MaxConcurrency > 0 && n > l.MaxConcurrency {
		n = l.MaxConcurrency
	}
	if n > cfg.Count {
		n = cfg.Count
	}
	return max(n, 1)
}

// Options wires a Coordinator.
type Options struct {
	Limits      Limits
	Stages      stage.Set
	Pipeline    pipeline.Options
	Registry    *Registry
	Broadcaster *progress.Broadcaster
	Logger      infra.Logger
	Now         func() time.Time
}

// Coordinator starts, tracks and aborts batches.
type Coordinator struct {
	limits      Limits
	stages      stage.Set
	pipeOpts    pipeline.Options
	registry    *Registry
	broadcaster *progress.Broadcaster
	global      *semaphore.Weighted
	logger      zerolog.Logger
	now         func() time.Time

	// base bounds every stage call; it is cancelled only when Shutdown
	// gives up waiting.
	base       context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	runs    map[string]*run
	closing bool
	wg      sync.WaitGroup
}

// run is the control block of one executing batch.
type run struct {
	id   string
	gate context.Context
	stop context.CancelCauseFunc
	done chan struct{}

	mu       sync.Mutex
	aborted  bool
	finished bool
}

// abort closes the gate. It reports false once the run loop has settled the
// terminal status.
func (r *run) abort(cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.aborted = true
	r.stop(cause)
	return true
}

// settle marks the run finished and reports whether it was aborted first.
func (r *run) settle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	return r.aborted
}

// NewCoordinator builds a coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Registry == nil || opts.Broadcaster == nil {
		return nil, errors.New("batch: registry and broadcaster are required")
	}
	if opts.Stages.Content == nil || opts.Stages.Persistence == nil {
		return nil, errors.New("batch: content and persistence stages are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Limits.DefaultConcurrency <= 0 {
		opts.Limits.DefaultConcurrency = 1
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		limits:      opts.Limits,
		stages:      opts.Stages,
		pipeOpts:    opts.Pipeline,
		registry:    opts.Registry,
		broadcaster: opts.Broadcaster,
		logger:      infra.Component(opts.Logger, "coordinator"),
		now:         opts.Now,
		base:        base,
		cancelBase:  cancel,
		runs:        make(map[string]*run),
	}
	if opts.Limits.GlobalConcurrency > 0 {
		c.global = semaphore.NewWeighted(int64(opts.Limits.GlobalConcurrency))
	}
	c.pipeOpts.Logger = opts.Logger
	return c, nil
}

// Normalize fills the defaults of an incoming config. A missing mode means
// single, the mode with the tightest ceiling.
func Normalize(cfg domain.BatchConfig) domain.BatchConfig {
	if cfg.Mode == "" {
		cfg.Mode = domain.BatchModeSingle
	}
	return cfg
}

// Validate checks cfg against the configured limits.
func (c *Coordinator) Validate(cfg domain.BatchConfig) error {
	cfg = Normalize(cfg)
	maxCount := c.limits.MaxCount(cfg.Mode)
	if maxCount == 0 {
		return fmt.Errorf("%w: %q (want single, bulk or bmad)", domain.ErrInvalidMode, cfg.Mode)
	}
	if cfg.Count < 1 || cfg.Count > maxCount {
		return &domain.ValidationError{Field: "count", Min: 1, Max: maxCount, Got: cfg.Count}
	}
	if cfg.Concurrency < 0 {
		return &domain.ValidationError{Field: "concurrency", Min: 0, Max: c.limits.MaxConcurrency, Got: cfg.Concurrency}
	}
	return nil
}

// StartBatch validates cfg, registers a queued job and starts executing it
// in the background. It returns as soon as the job is registered.
func (c *Coordinator) StartBatch(ctx context.Context, cfg domain.BatchConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg = Normalize(cfg)
	if err := c.Validate(cfg); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return "", domain.ErrShuttingDown
	}

	job := domain.BatchJob{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    domain.BatchStatusQueued,
		Counts:    domain.Counts{Total: cfg.Count},
		CreatedAt: c.now().UTC(),
	}
	job = job.Clone()
	if err := c.registry.Register(job); err != nil {
		return "", err
	}
	c.broadcaster.Open(job.ID)

	gate, stop := context.WithCancelCause(c.base)
	r := &run{id: job.ID, gate: gate, stop: stop, done: make(chan struct{})}
	c.runs[job.ID] = r
	c.wg.Add(1)
	go c.execute(r, job.Config)

	c.logger.Info().
		Str("batch_id", job.ID).
		Str("mode", string(cfg.Mode)).
		Int("count", cfg.Count).
		Msg("batch queued")
	return job.ID, nil
}

// Progress returns a snapshot of the batch.
func (c *Coordinator) Progress(batchID string) (domain.BatchJob, error) {
	return c.registry.Get(batchID)
}

// Subscribe attaches a live observer to the batch's event stream.
func (c *Coordinator) Subscribe(batchID string) (*progress.Subscription, error) {
	return c.broadcaster.Subscribe(batchID)
}

// Unsubscribe detaches an observer.
func (c *Coordinator) Unsubscribe(sub *progress.Subscription) {
	c.broadcaster.Unsubscribe(sub)
}

// List returns batch snapshots in creation order. Finished batches are only
// included when includeFinished is set.
func (c *Coordinator) List(includeFinished bool) []domain.BatchJob {
	jobs := c.registry.List()
	if includeFinished {
		return jobs
	}
	active := jobs[:0]
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			active = append(active, j)
		}
	}
	return active
}

// Abort stops dispatching new tasks for the batch. Tasks already inside a
// stage finish that stage and start no further ones.
func (c *Coordinator) Abort(batchID string) error {
	job, err := c.registry.Get(batchID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return domain.ErrBatchFinished
	}
	c.mu.Lock()
	r, ok := c.runs[batchID]
	c.mu.Unlock()
	if !ok || !r.abort(errAborted) {
		return domain.ErrBatchFinished
	}
	c.logger.Info().Str("batch_id", batchID).Msg("batch abort requested")
	return nil
}

// Wait blocks until the batch run loop has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, batchID string) error {
	c.mu.Lock()
	r, ok := c.runs[batchID]
	c.mu.Unlock()
	if !ok {
		_, err := c.registry.Get(batchID)
		return err
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new batches, aborts running ones and waits for their run
// loops. If ctx expires first, in-flight stage calls are cancelled too.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	for _, r := range c.runs {
		r.abort(domain.ErrShuttingDown)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.cancelBase()
		return nil
	case <-ctx.Done():
		c.cancelBase()
		<-done
		return ctx.Err()
	}
}

var errAborted = errors.New("batch aborted")
