package domain

import "context"

// RecipeRepository defines persistence for generated recipes. Upsert is keyed
// by the idempotency key so a retried persist never creates a duplicate.
type RecipeRepository interface {
	Upsert(ctx context.Context, recipe *RecipeArtifact, idempotencyKey string) (string, error)
	GetByID(ctx context.Context, id string) (*RecipeArtifact, error)
	ListByBatch(ctx context.Context, batchID string) ([]RecipeArtifact, error)
}
