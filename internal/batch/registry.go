package batch

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
)

const shardCount = 16

// RegistryOptions configures retention of finished batches.
type RegistryOptions struct {
	// Retention is how long a terminal batch stays queryable.
	Retention time.Duration
	// MaxRetained caps the number of terminal batches kept; the oldest
	// completed go first.
	MaxRetained int
	// OnEvict is called, outside any lock, for every evicted batch ID.
	OnEvict func(batchID string)
	Logger  infra.Logger
}

// Registry is the process-wide table of batch jobs. Reads return deep
// copies; writes go through Update.
type Registry struct {
	shards [shardCount]*shard
	seq    atomic.Uint64
	opts   RegistryOptions
	logger zerolog.Logger
}

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

type entry struct {
	job domain.BatchJob
	seq uint64
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.MaxRetained <= 0 {
		opts.MaxRetained = 1000
	}
	r := &Registry{opts: opts, logger: infra.Component(opts.Logger, "registry")}
	for i := range r.shards {
		r.shards[i] = &shard{jobs: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shard(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a new job. Registering an existing ID fails.
func (r *Registry) Register(job domain.BatchJob) error {
	if job.ID == "" {
		return fmt.Errorf("register batch: empty id")
	}
	s := r.shard(job.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("register batch %s: %w", job.ID, domain.ErrDuplicateOperation)
	}
	s.jobs[job.ID] = &entry{job: job.Clone(), seq: r.seq.Add(1)}
	return nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (domain.BatchJob, error) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return e.job.Clone(), nil
}

// List returns snapshots of every job in registration order.
func (r *Registry) List() []domain.BatchJob {
	type ordered struct {
		seq uint64
		job domain.BatchJob
	}
	var all []ordered
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.jobs {
			all = append(all, ordered{seq: e.seq, job: e.job.Clone()})
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(all, func(a, b ordered) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]domain.BatchJob, len(all))
	for i, o := range all {
		out[i] = o.job
	}
	return out
}

// Update applies fn to a copy of the job and stores the result atomically.
func (r *Registry) Update(id string, fn func(*domain.BatchJob)) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("update batch %s: %w", id, domain.ErrNotFound)
	}
	next := e.job.Clone()
	fn(&next)
	next.ID = id
	e.job = next
	return nil
}

// Evict removes a job regardless of its state.
func (r *Registry) Evict(id string) {
	s := r.shard(id)
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if ok && r.opts.OnEvict != nil {
		r.opts.OnEvict(id)
	}
}

// EvictExpired drops terminal jobs completed more than Retention before now,
// then trims the remaining terminal jobs to MaxRetained. It returns the
// evicted IDs.
func (r *Registry) EvictExpired(now time.Time) []string {
	type finished struct {
		id          string
		completedAt time.Time
	}
	var retained []finished
	var expired []string
	for _, s := range r.shards {
		s.mu.RLock()
		for id, e := range s.jobs {
			if !e.job.Status.IsTerminal() || e.job.CompletedAt == nil {
				continue
			}
			if now.Sub(*e.job.CompletedAt) >= r.opts.Retention {
				expired = append(expired, id)
				continue
			}
			retained = append(retained, finished{id: id, completedAt: *e.job.CompletedAt})
		}
		s.mu.RUnlock()
	}

	if excess := len(retained) - r.opts.MaxRetained; excess > 0 {
		slices.SortFunc(retained, func(a, b finished) int { return a.completedAt.Compare(b.completedAt) })
		for _, f := range retained[:excess] {
			expired = append(expired, f.id)
		}
	}

	for _, id := range expired {
		r.Evict(id)
	}
	if len(expired) > 0 {
		r.logger.Debug().Int("count", len(expired)).Msg("evicted finished batches")
	}
	return expired
}

// RunJanitor evicts expired jobs every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.EvictExpired(now)
		}
	}
}
