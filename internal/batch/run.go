package batch

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"mealplan/internal/domain"
	"mealplan/internal/pipeline"
)

type messageKind int

const (
	msgStarted messageKind = iota
	msgStage
	msgFinished
)

// message is sent from workers to the run loop, the only writer of a
// batch's counts, status and events.
type message struct {
	kind    messageKind
	task    *domain.RecipeTask
	stage   domain.StageName
	attempt int
}

// execute is the run loop of one batch.
func (c *Coordinator) execute(r *run, cfg domain.BatchConfig) {
	defer c.wg.Done()
	defer close(r.done)
	defer func() {
		c.mu.Lock()
		delete(c.runs, r.id)
		c.mu.Unlock()
		r.stop(nil)
	}()

	log := c.logger.With().Str("batch_id", r.id).Logger()
	counts := domain.Counts{Total: cfg.Count}
	var stopped int
	var fault error

	started := c.now().UTC()
	if err := c.registry.Update(r.id, func(j *domain.BatchJob) {
		j.Status = domain.BatchStatusRunning
		j.StartedAt = &started
	}); err != nil {
		fault = err
	}

	p := pipeline.New(pipeline.NewPlan(c.stages, cfg), c.pipeOpts)
	workers := c.limits.workers(cfg)
	c.publish(r.id, domain.ProgressEvent{
		Agent:   domain.CoordinatorAgent,
		Status:  domain.EventStarted,
		Message: fmt.Sprintf("running %d recipes on %d workers", cfg.Count, workers),
		Counts:  counts,
		Payload: map[string]any{"stages": p.Plan().Names(), "workers": workers},
	})
	log.Info().Int("workers", workers).Msg("batch started")

	msgs := make(chan message, workers*2)
	var poolErr error
	if fault == nil {
		tasks := make(chan *domain.RecipeTask)
		var g errgroup.Group
		g.Go(func() error {
			defer close(tasks)
			for i := 0; i < cfg.Count; i++ {
				task := newTask(r.id, i, cfg.Recipe)
				select {
				case tasks <- task:
				case <-r.gate.Done():
					return nil
				}
			}
			return nil
		})
		for w := 0; w < workers; w++ {
			g.Go(func() error { return c.work(r, p, tasks, msgs) })
		}
		go func() {
			poolErr = g.Wait()
			close(msgs)
		}()
	} else {
		close(msgs)
	}

	for m := range msgs {
		if m.kind == msgFinished && m.task.Stopped {
			stopped++
		}
		if err := c.apply(r, &counts, m); err != nil && fault == nil {
			fault = err
			r.abort(err)
		}
	}
	if poolErr != nil && fault == nil {
		fault = poolErr
	}

	c.finish(r, counts, stopped, fault)
}

// work pulls tasks until the channel closes or the batch is stopped. A panic
// faults the batch; the task it interrupted is still reported as failed so
// the counts balance.
func (c *Coordinator) work(r *run, p *pipeline.Pipeline, tasks <-chan *domain.RecipeTask, msgs chan<- message) (err error) {
	var current *domain.RecipeTask
	defer func() {
		if rec := recover(); rec != nil {
			cause := fmt.Errorf("worker panic: %v", rec)
			err = &domain.CoordinatorFault{BatchID: r.id, Cause: cause}
			r.abort(err)
			if current != nil {
				p.Abandon(current, cause)
				msgs <- message{kind: msgFinished, task: current}
			}
		}
	}()

	obs := observer{msgs: msgs}
	for task := range tasks {
		if r.gate.Err() != nil {
			continue
		}
		if c.global != nil {
			if err := c.global.Acquire(r.gate, 1); err != nil {
				continue
			}
		}
		msgs <- message{kind: msgStarted, task: task}
		current = task
		func() {
			if c.global != nil {
				defer c.global.Release(1)
			}
			p.Run(c.base, r.gate, task, obs)
		}()
		current = nil
		msgs <- message{kind: msgFinished, task: task}
	}
	return nil
}

type observer struct {
	msgs chan<- message
}

func (o observer) StageStarted(task *domain.RecipeTask, name domain.StageName, attempt int) {
	o.msgs <- message{kind: msgStage, task: task, stage: name, attempt: attempt}
}

func (o observer) StageFinished(*domain.RecipeTask, domain.StageName, int, error) {}

// apply folds one worker message into the batch state.
func (c *Coordinator) apply(r *run, counts *domain.Counts, m message) error {
	switch m.kind {
	case msgStarted:
		counts.InFlight++
		return c.writeCounts(r.id, *counts)

	case msgStage:
		c.publish(r.id, domain.ProgressEvent{
			Agent:   string(m.stage),
			Status:  domain.EventInProgress,
			TaskID:  m.task.ID,
			Message: fmt.Sprintf("%s attempt %d", m.stage, m.attempt),
			Counts:  *counts,
			Payload: map[string]any{"stage": m.stage, "attempt": m.attempt},
		})
		return nil

	case msgFinished:
		counts.InFlight--
		task := m.task
		ev := domain.ProgressEvent{
			Agent:   domain.CoordinatorAgent,
			TaskID:  task.ID,
			Payload: taskPayload(task),
		}
		if task.Outcome == domain.TaskSucceeded {
			counts.Succeeded++
			ev.Status = domain.EventItemSucceeded
			ev.Message = fmt.Sprintf("recipe %d ready", task.Index+1)
		} else {
			counts.Failed++
			ev.Status = domain.EventItemFailed
			ev.Message = task.Reason
			c.logOrphan(task)
		}
		ev.Counts = *counts
		err := c.writeCounts(r.id, *counts)
		c.publish(r.id, ev)
		return err
	}
	return nil
}

func (c *Coordinator) writeCounts(id string, counts domain.Counts) error {
	if err := c.registry.Update(id, func(j *domain.BatchJob) { j.Counts = counts }); err != nil {
		return &domain.CoordinatorFault{BatchID: id, Cause: err}
	}
	return nil
}

// finish records the terminal status and publishes the last event. An
// aborted batch ends aborted when the abort left work undone: tasks that
// never ran, or tasks the gate stopped between stages.
func (c *Coordinator) finish(r *run, counts domain.Counts, stopped int, fault error) {
	log := c.logger.With().Str("batch_id", r.id).Logger()

	status := domain.BatchStatusComplete
	event := domain.EventComplete
	message := fmt.Sprintf("%d succeeded, %d failed", counts.Succeeded, counts.Failed)
	aborted := r.settle()
	switch {
	case fault != nil:
		status, event, message = domain.BatchStatusError, domain.EventError, fault.Error()
	case aborted && (!counts.Done() || stopped > 0):
		status, event = domain.BatchStatusAborted, domain.EventAborted
		message = fmt.Sprintf("aborted: %s", message)
	case counts.Succeeded == 0:
		status, event = domain.BatchStatusError, domain.EventError
		message = fmt.Sprintf("no recipes generated: %s", message)
	}

	completed := c.now().UTC()
	if err := c.registry.Update(r.id, func(j *domain.BatchJob) {
		j.Status = status
		j.Counts = counts
		j.CompletedAt = &completed
		if fault != nil {
			j.Error = fault.Error()
		}
	}); err != nil {
		log.Error().Err(err).Msg("record terminal status")
		status, event = domain.BatchStatusError, domain.EventError
	}

	c.publish(r.id, domain.ProgressEvent{
		Agent:   domain.CoordinatorAgent,
		Status:  event,
		Message: message,
		Counts:  counts,
	})

	entry := log.Info()
	if status != domain.BatchStatusComplete {
		entry = log.Warn()
	}
	entry.
		Str("status", string(status)).
		Int("succeeded", counts.Succeeded).
		Int("failed", counts.Failed).
		Msg("batch finished")
}

func (c *Coordinator) publish(batchID string, ev domain.ProgressEvent) {
	if _, err := c.broadcaster.Publish(batchID, ev); err != nil {
		c.logger.Error().Err(err).Str("batch_id", batchID).Str("status", string(ev.Status)).Msg("publish progress event")
	}
}

// logOrphan reports an image that was stored for a task whose record was
// never persisted.
func (c *Coordinator) logOrphan(task *domain.RecipeTask) {
	if task.FailedStage != domain.StagePersistence || task.Artifact == nil || task.Artifact.ImageKey == "" {
		return
	}
	c.logger.Warn().
		Str("batch_id", task.BatchID).
		Str("task_id", task.ID).
		Str("image_key", task.Artifact.ImageKey).
		Msg("stored image has no persisted recipe")
}

func newTask(batchID string, index int, tmpl domain.RecipeSpec) *domain.RecipeTask {
	spec := tmpl
	spec.DietaryTags = slices.Clone(tmpl.DietaryTags)
	spec.Variant = index
	return &domain.RecipeTask{
		ID:      fmt.Sprintf("%s-%04d", batchID, index),
		BatchID: batchID,
		Index:   index,
		Spec:    spec,
		Outcome: domain.TaskPending,
	}
}

func taskPayload(task *domain.RecipeTask) map[string]any {
	payload := map[string]any{
		"index":    task.Index,
		"attempts": maps.Clone(task.Attempts),
	}
	if len(task.Skipped) > 0 {
		payload["skipped"] = slices.Clone(task.Skipped)
	}
	if task.Outcome == domain.TaskSucceeded && task.Artifact != nil {
		payload["recordId"] = task.Artifact.RecordID
		payload["title"] = task.Artifact.Title
		if task.Artifact.ImageURL != "" {
			payload["imageUrl"] = task.Artifact.ImageURL
		}
		return payload
	}
	if task.FailedStage != "" {
		payload["failedStage"] = task.FailedStage
	}
	if task.Stopped {
		payload["stopped"] = true
	}
	payload["reason"] = task.Reason
	return payload
}
