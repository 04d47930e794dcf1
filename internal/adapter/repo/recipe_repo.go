package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"mealplan/internal/domain"
	"mealplan/internal/infra"
	"mealplan/internal/sqlinline"
)

// RecipeRepositoryPG implements domain.RecipeRepository on PostgreSQL.
type RecipeRepositoryPG struct {
	db infra.SQLExecutor
}

// NewRecipeRepository creates a recipe repository backed by PostgreSQL.
func NewRecipeRepository(db infra.SQLExecutor) *RecipeRepositoryPG {
	return &RecipeRepositoryPG{db: db}
}

// EnsureSchema creates the recipes table when it does not exist yet.
func (r *RecipeRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, sqlinline.QEnsureRecipesTable)
	return err
}

// Upsert inserts the recipe or rewrites the row previously stored under the
// same idempotency key, returning the stable record id.
func (r *RecipeRepositoryPG) Upsert(ctx context.Context, recipe *domain.RecipeArtifact, idempotencyKey string) (string, error) {
	if recipe == nil {
		return "", errors.New("recipe is required")
	}
	if idempotencyKey == "" {
		return "", errors.New("idempotency key is required")
	}
	body, err := json.Marshal(recipe)
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	var id string
	if err := r.db.QueryRow(ctx, sqlinline.QUpsertRecipe,
		uuid.NewString(),
		idempotencyKey,
		recipe.BatchID,
		recipe.TaskID,
		recipe.Title,
		recipe.MealType,
		body,
		recipe.ImageKey,
		recipe.ImageURL,
	).Scan(&id); err != nil {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return "", fmt.Errorf("upsert recipe: %w: %w", domain.ErrTransient, err)
		}
		return "", fmt.Errorf("upsert recipe: %w", err)
	}
	return id, nil
}

// GetByID fetches a recipe by its record identifier.
func (r *RecipeRepositoryPG) GetByID(ctx context.Context, id string) (*domain.RecipeArtifact, error) {
	var (
		recordID string
		body     []byte
	)
	if err := r.db.QueryRow(ctx, sqlinline.QGetRecipeByID, id).Scan(&recordID, &body); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return decodeRecipe(recordID, body)
}

// ListByBatch returns every recipe persisted for a batch in creation order.
func (r *RecipeRepositoryPG) ListByBatch(ctx context.Context, batchID string) ([]domain.RecipeArtifact, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListRecipesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecipeArtifact
	for rows.Next() {
		var (
			recordID string
			body     []byte
		)
		if err := rows.Scan(&recordID, &body); err != nil {
			return nil, err
		}
		recipe, err := decodeRecipe(recordID, body)
		if err != nil {
			return nil, err
		}
		out = append(out, *recipe)
	}
	return out, rows.Err()
}

func decodeRecipe(recordID string, body []byte) (*domain.RecipeArtifact, error) {
	var recipe domain.RecipeArtifact
	if err := json.Unmarshal(body, &recipe); err != nil {
		return nil, fmt.Errorf("decode recipe %s: %w", recordID, err)
	}
	recipe.RecordID = recordID
	return &recipe, nil
}

var _ domain.RecipeRepository = (*RecipeRepositoryPG)(nil)
