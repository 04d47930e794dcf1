package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

func finishedJob(id string, completedAt time.Time) domain.BatchJob {
	return domain.BatchJob{ID: id, Status: domain.BatchStatusComplete, CompletedAt: &completedAt}
}

func TestRegistryRegisterGetUpdate(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	job := domain.BatchJob{ID: "b1", Status: domain.BatchStatusQueued, Config: domain.BatchConfig{Recipe: domain.RecipeSpec{DietaryTags: []string{"vegan"}}}}
	require.NoError(t, r.Register(job))
	require.ErrorIs(t, r.Register(job), domain.ErrDuplicateOperation)

	got, err := r.Get("b1")
	require.NoError(t, err)
	got.Config.Recipe.DietaryTags[0] = "mutated"
	got.Status = domain.BatchStatusError

	again, err := r.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "vegan", again.Config.Recipe.DietaryTags[0])
	assert.Equal(t, domain.BatchStatusQueued, again.Status)

	require.NoError(t, r.Update("b1", func(j *domain.BatchJob) {
		j.Status = domain.BatchStatusRunning
		j.Counts.InFlight = 2
	}))
	again, _ = r.Get("b1")
	assert.Equal(t, domain.BatchStatusRunning, again.Status)
	assert.Equal(t, 2, again.Counts.InFlight)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.Update("missing", func(*domain.BatchJob) {}), domain.ErrNotFound)
}

func TestRegistryListKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	var want []string
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("batch-%02d", i)
		want = append(want, id)
		require.NoError(t, r.Register(domain.BatchJob{ID: id}))
	}
	var got []string
	for _, j := range r.List() {
		got = append(got, j.ID)
	}
	assert.Equal(t, want, got)
}

func TestRegistryEvictExpired(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	r := NewRegistry(RegistryOptions{
		Retention:   time.Hour,
		MaxRetained: 2,
		OnEvict: func(id string) {
			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, id)
		},
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Register(domain.BatchJob{ID: "running", Status: domain.BatchStatusRunning}))
	require.NoError(t, r.Register(finishedJob("old", now.Add(-2*time.Hour))))
	require.NoError(t, r.Register(finishedJob("a", now.Add(-30*time.Minute))))
	require.NoError(t, r.Register(finishedJob("b", now.Add(-20*time.Minute))))
	require.NoError(t, r.Register(finishedJob("c", now.Add(-10*time.Minute))))

	got := r.EvictExpired(now)
	assert.ElementsMatch(t, []string{"old", "a"}, got)
	assert.ElementsMatch(t, []string{"old", "a"}, evicted)

	var remaining []string
	for _, j := range r.List() {
		remaining = append(remaining, j.ID)
	}
	assert.Equal(t, []string{"running", "b", "c"}, remaining)
}

func TestRegistryJanitorStopsWithContext(t *testing.T) {
	r := NewRegistry(RegistryOptions{Retention: time.Millisecond})
	require.NoError(t, r.Register(finishedJob("done", time.Now().Add(-time.Second))))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.RunJanitor(ctx, 5*time.Millisecond)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		_, err := r.Get("done")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("b%d", i)
			if err := r.Register(domain.BatchJob{ID: id, Counts: domain.Counts{Total: 100}}); err != nil {
				t.Error(err)
				return
			}
			for n := 0; n < 100; n++ {
				_ = r.Update(id, func(j *domain.BatchJob) { j.Counts.Succeeded++ })
				_, _ = r.Get(id)
				_ = r.List()
			}
		}()
	}
	wg.Wait()
	for _, j := range r.List() {
		assert.Equal(t, 100, j.Counts.Succeeded)
	}
}
