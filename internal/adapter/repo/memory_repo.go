package repo

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"mealplan/internal/domain"
)

// MemoryRecipeRepository keeps recipes in process memory. It is used when no
// database is configured and in tests.
type MemoryRecipeRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.RecipeArtifact
	byKey   map[string]string
	ordered []string
}

// NewMemoryRecipeRepository returns an empty in-memory repository.
func NewMemoryRecipeRepository() *MemoryRecipeRepository {
	return &MemoryRecipeRepository{
		byID:  make(map[string]domain.RecipeArtifact),
		byKey: make(map[string]string),
	}
}

func (m *MemoryRecipeRepository) Upsert(ctx context.Context, recipe *domain.RecipeArtifact, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if recipe == nil {
		return "", errors.New("recipe is required")
	}
	if idempotencyKey == "" {
		return "", errors.New("idempotency key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[idempotencyKey]
	if !ok {
		id = uuid.NewString()
		m.byKey[idempotencyKey] = id
		m.ordered = append(m.ordered, id)
	}
	stored := cloneRecipe(*recipe)
	stored.RecordID = id
	m.byID[id] = stored
	return id, nil
}

func (m *MemoryRecipeRepository) GetByID(ctx context.Context, id string) (*domain.RecipeArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recipe, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRecipe(recipe)
	return &out, nil
}

func (m *MemoryRecipeRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.RecipeArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RecipeArtifact
	for _, id := range m.ordered {
		if recipe := m.byID[id]; recipe.BatchID == batchID {
			out = append(out, cloneRecipe(recipe))
		}
	}
	return out, nil
}

// Len reports the number of distinct stored recipes.
func (m *MemoryRecipeRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func cloneRecipe(r domain.RecipeArtifact) domain.RecipeArtifact {
	r.DietaryTags = slices.Clone(r.DietaryTags)
	r.Ingredients = slices.Clone(r.Ingredients)
	r.Steps = slices.Clone(r.Steps)
	return r
}

var _ domain.RecipeRepository = (*MemoryRecipeRepository)(nil)
