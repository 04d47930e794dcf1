// Package pipeline runs one recipe task through the ordered stage adapters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
	"mealplan/internal/stage"
)

// Plan is the ordered list of stages enabled for one batch. It is computed
// once from the batch config and shared by every task of the batch.
type Plan struct {
	Steps []stage.Adapter
	// Disabled names the stages switched off by the batch's feature flags.
	Disabled []domain.StageName
}

// NewPlan selects the stages a batch runs: content always, nutrition when
// validation is enabled, image synthesis when image generation is enabled,
// image storage only when storage is enabled and synthesis runs, and
// persistence always.
func NewPlan(set stage.Set, cfg domain.BatchConfig) Plan {
	var plan Plan
	add := func(a stage.Adapter, enabled bool) {
		if a == nil {
			return
		}
		if !enabled {
			plan.Disabled = append(plan.Disabled, a.Name())
			return
		}
		plan.Steps = append(plan.Steps, a)
	}
	imageRuns := cfg.EnableImageGeneration && set.Image != nil
	add(set.Content, true)
	add(set.Nutrition, cfg.EnableValidation)
	add(set.Image, cfg.EnableImageGeneration)
	add(set.ImageStorage, cfg.EnableStorage && imageRuns)
	add(set.Persistence, true)
	return plan
}

// Names lists the planned stage names in order.
func (p Plan) Names() []domain.StageName {
	names := make([]domain.StageName, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name()
	}
	return names
}

// Observer is told when a stage attempt starts and finishes. Calls come from
// the worker goroutine that owns the task.
type Observer interface {
	StageStarted(task *domain.RecipeTask, name domain.StageName, attempt int)
	StageFinished(task *domain.RecipeTask, name domain.StageName, attempt int, err error)
}

// Options tunes retries and stage deadlines.
type Options struct {
	RetryBudget int
	RetryBase   time.Duration
	Timeouts    map[domain.StageName]time.Duration
	Logger      infra.Logger
}

// TimeoutsFromConfig maps the configured stage timeouts by stage name.
func TimeoutsFromConfig(t infra.StageTimeouts) map[domain.StageName]time.Duration {
	return map[domain.StageName]time.Duration{
		domain.StageContent:      t.Content,
		domain.StageNutrition:    t.Nutrition,
		domain.StageImage:        t.Image,
		domain.StageImageStorage: t.ImageStorage,
		domain.StagePersistence:  t.Persistence,
	}
}

// Pipeline executes a Plan for individual tasks. It is safe for concurrent
// use; all per-task state lives on the task.
type Pipeline struct {
	plan   Plan
	opts   Options
	logger zerolog.Logger
}

// New builds a pipeline for plan.
func New(plan Plan, opts Options) *Pipeline {
	if opts.RetryBudget < 0 {
		opts.RetryBudget = 0
	}
	return &Pipeline{plan: plan, opts: opts, logger: infra.Component(opts.Logger, "pipeline")}
}

// Plan returns the stages this pipeline runs.
func (p *Pipeline) Plan() Plan { return p.plan }

// Run drives task through the plan. Stage calls run on execCtx bounded by
// the stage timeout; gate is checked before every stage and during retry
// backoff, so cancelling it lets the current stage finish but starts no
// further stages. Run always leaves the task succeeded or failed.
func (p *Pipeline) Run(execCtx, gate context.Context, task *domain.RecipeTask, obs Observer) {
	if task.Attempts == nil {
		task.Attempts = make(map[domain.StageName]int, len(p.plan.Steps))
	}
	task.Outcome = domain.TaskRunning
	task.Skipped = append(task.Skipped[:0], p.plan.Disabled...)
	payload := &stage.Payload{TaskID: task.ID, BatchID: task.BatchID, Spec: task.Spec}

	for i, adapter := range p.plan.Steps {
		task.StageIndex = i
		if gate.Err() != nil {
			p.fail(task, "", fmt.Errorf("stopped before %s: %w", adapter.Name(), context.Cause(gate)), i)
			task.Stopped = true
			return
		}
		out, err := p.runStage(execCtx, gate, task, adapter, payload, obs)
		if err != nil {
			p.fail(task, adapter.Name(), err, i+1)
			return
		}
		payload = out
		task.Artifact = payload.Recipe
	}

	task.StageIndex = len(p.plan.Steps)
	task.Outcome = domain.TaskSucceeded
	task.Artifact = payload.Recipe
}

func (p *Pipeline) runStage(execCtx, gate context.Context, task *domain.RecipeTask, adapter stage.Adapter, in *stage.Payload, obs Observer) (*stage.Payload, error) {
	name := adapter.Name()
	var lastErr error
	for attempt := 1; attempt <= 1+p.opts.RetryBudget; attempt++ {
		if attempt > 1 {
			if err := sleep(gate, p.backoff(attempt-1)); err != nil {
				return nil, lastErr
			}
		}
		task.Attempts[name] = attempt
		if obs != nil {
			obs.StageStarted(task, name, attempt)
		}

		out, err := p.call(execCtx, adapter, in)
		if obs != nil {
			obs.StageFinished(task, name, attempt, err)
		}
		if err == nil {
			return out, nil
		}
		lastErr = err

		var se *domain.StageError
		retryable := errors.As(err, &se) && se.Retryable
		p.logger.Warn().
			Err(err).
			Str("batch_id", task.BatchID).
			Str("task_id", task.ID).
			Str("stage", string(name)).
			Int("attempt", attempt).
			Bool("retryable", retryable).
			Msg("stage attempt failed")
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

// call runs one attempt and normalises its error into a StageError.
func (p *Pipeline) call(execCtx context.Context, adapter stage.Adapter, in *stage.Payload) (out *stage.Payload, err error) {
	name := adapter.Name()
	ctx := execCtx
	if timeout := p.opts.Timeouts[name]; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(execCtx, timeout)
		defer cancel()
	}

	out, err = adapter.Execute(ctx, in)
	if err == nil {
		if out == nil {
			return nil, &domain.StageError{Stage: name, Cause: errors.New("stage returned no output")}
		}
		return out, nil
	}

	var se *domain.StageError
	if errors.As(err, &se) {
		return nil, err
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) && execCtx.Err() == nil
	if timedOut {
		return nil, &domain.StageError{Stage: name, Cause: fmt.Errorf("timed out: %w", err), Retryable: true}
	}
	return nil, &domain.StageError{Stage: name, Cause: err}
}

// Abandon fails a task whose run was cut short outside the stage flow, at
// the stage it had reached.
func (p *Pipeline) Abandon(task *domain.RecipeTask, cause error) {
	var name domain.StageName
	next := len(p.plan.Steps)
	if task.StageIndex < len(p.plan.Steps) {
		name = p.plan.Steps[task.StageIndex].Name()
		next = task.StageIndex + 1
	}
	p.fail(task, name, cause, next)
}

func (p *Pipeline) backoff(retry int) time.Duration {
	return p.opts.RetryBase << (retry - 1)
}

// fail marks task failed at stage name and records every planned stage from
// skipFrom on as skipped, after the flag-disabled ones.
func (p *Pipeline) fail(task *domain.RecipeTask, name domain.StageName, err error, skipFrom int) {
	task.Outcome = domain.TaskFailed
	task.FailedStage = name
	task.Reason = err.Error()
	for _, rest := range p.plan.Steps[skipFrom:] {
		task.Skipped = append(task.Skipped, rest.Name())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
