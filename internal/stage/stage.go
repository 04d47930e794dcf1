// Package stage wraps the external recipe capabilities behind one uniform
// contract so the pipeline can sequence, time out and retry them.
package stage

import (
	"context"
	"errors"
	"slices"

	"mealplan/internal/domain"
	"mealplan/internal/providers/genai"
)

// Payload is the value carried between stages. Adapters never mutate the
// payload they receive; they return an updated copy.
type Payload struct {
	TaskID  string
	BatchID string
	Spec    domain.RecipeSpec
	Recipe  *domain.RecipeArtifact
	Image   *Image
}

// Image is the synthesised picture of a recipe before it is stored.
type Image struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// Adapter is one step of the recipe pipeline. Implementations hold no
// per-call state, are safe for concurrent use and never retry.
type Adapter interface {
	Name() domain.StageName
	Execute(ctx context.Context, in *Payload) (*Payload, error)
}

// RecipeWriter generates recipe content.
type RecipeWriter interface {
	GenerateRecipe(ctx context.Context, req genai.RecipeRequest) (*domain.RecipeArtifact, error)
}

// NutritionChecker verifies a recipe's macros against its spec.
type NutritionChecker interface {
	Validate(ctx context.Context, spec domain.RecipeSpec, recipe domain.RecipeArtifact) (domain.Nutrition, error)
}

// ImageGenerator renders a picture from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
}

// ImageStore stores image bytes under a key and returns the public URL.
type ImageStore interface {
	StoreImage(ctx context.Context, key string, data []byte) (string, error)
}

// Set groups the adapters a pipeline can draw from. Nil members are
// treated as disabled.
type Set struct {
	Content      Adapter
	Nutrition    Adapter
	Image        Adapter
	ImageStorage Adapter
	Persistence  Adapter
}

// Fail builds a StageError, marking it retryable when the cause is a
// transient provider error or a deadline expiry.
func Fail(name domain.StageName, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StageError
	if errors.As(err, &se) {
		return se
	}
	return &domain.StageError{Stage: name, Cause: err, Retryable: retryable(err)}
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Payload) clone() *Payload {
	out := *p
	if p.Recipe != nil {
		r := *p.Recipe
		r.DietaryTags = slices.Clone(p.Recipe.DietaryTags)
		r.Ingredients = slices.Clone(p.Recipe.Ingredients)
		r.Steps = slices.Clone(p.Recipe.Steps)
		out.Recipe = &r
	}
	return &out
}

func requireRecipe(name domain.StageName, in *Payload) error {
	if in == nil || in.Recipe == nil {
		return &domain.StageError{Stage: name, Cause: errors.New("no recipe draft to work on")}
	}
	return nil
}
