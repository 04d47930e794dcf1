package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mealplan/internal/domain"
	"mealplan/internal/providers/genai"
	"mealplan/internal/providers/image"
)

// Content drafts the recipe text.
type Content struct {
	Writer RecipeWriter
	Locale string
}

func (Content) Name() domain.StageName { return domain.StageContent }

func (a Content) Execute(ctx context.Context, in *Payload) (*Payload, error) {
	locale := in.Spec.Locale
	if locale == "" {
		locale = a.Locale
	}
	recipe, err := a.Writer.GenerateRecipe(ctx, genai.RecipeRequest{
		RequestID: in.TaskID,
		Spec:      in.Spec,
		Locale:    locale,
	})
	if err != nil {
		return nil, Fail(domain.StageContent, err)
	}
	if recipe == nil || strings.TrimSpace(recipe.Title) == "" {
		return nil, Fail(domain.StageContent, fmt.Errorf("%w: empty recipe", domain.ErrProviderFailure))
	}
	out := in.clone()
	r := *recipe
	r.TaskID = in.TaskID
	r.BatchID = in.BatchID
	out.Recipe = &r
	return out, nil
}

// Nutrition verifies and normalises the recipe's macro profile.
type Nutrition struct {
	Checker NutritionChecker
}

func (Nutrition) Name() domain.StageName { return domain.StageNutrition }

func (a Nutrition) Execute(ctx context.Context, in *Payload) (*Payload, error) {
	if err := requireRecipe(domain.StageNutrition, in); err != nil {
		return nil, err
	}
	n, err := a.Checker.Validate(ctx, in.Spec, *in.Recipe)
	if err != nil {
		return nil, Fail(domain.StageNutrition, err)
	}
	out := in.clone()
	out.Recipe.Nutrition = n
	return out, nil
}

// ImageSynthesis renders a food photograph for the recipe.
type ImageSynthesis struct {
	Generator   ImageGenerator
	AspectRatio string
}

func (ImageSynthesis) Name() domain.StageName { return domain.StageImage }

func (a ImageSynthesis) Execute(ctx context.Context, in *Payload) (*Payload, error) {
	if err := requireRecipe(domain.StageImage, in); err != nil {
		return nil, err
	}
	aspect := a.AspectRatio
	if aspect == "" {
		aspect = image.DefaultAspectRatio
	}
	asset, err := a.Generator.GenerateImage(ctx, genai.ImageRequest{
		Prompt:         image.BuildRecipePrompt(*in.Recipe),
		NegativePrompt: image.DefaultNegativePrompt,
		AspectRatio:    aspect,
		RequestID:      in.TaskID,
	})
	if err != nil {
		return nil, Fail(domain.StageImage, err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return nil, Fail(domain.StageImage, fmt.Errorf("%w: empty image", domain.ErrProviderFailure))
	}
	out := in.clone()
	out.Image = &Image{Format: asset.Format, Width: asset.Width, Height: asset.Height, Data: asset.Data}
	return out, nil
}

// ImageStorage uploads the synthesised image under a key derived from the
// task ID, so a retried upload overwrites the same object.
type ImageStorage struct {
	Store ImageStore
}

func (ImageStorage) Name() domain.StageName { return domain.StageImageStorage }

func (a ImageStorage) Execute(ctx context.Context, in *Payload) (*Payload, error) {
	if err := requireRecipe(domain.StageImageStorage, in); err != nil {
		return nil, err
	}
	if in.Image == nil || len(in.Image.Data) == 0 {
		return nil, &domain.StageError{Stage: domain.StageImageStorage, Cause: errors.New("no image to store")}
	}
	key := ImageKey(in.BatchID, in.TaskID, in.Image.Format)
	url, err := a.Store.StoreImage(ctx, key, in.Image.Data)
	if err != nil {
		return nil, Fail(domain.StageImageStorage, err)
	}
	out := in.clone()
	out.Recipe.ImageKey = key
	out.Recipe.ImageURL = url
	return out, nil
}

// ImageKey is the storage key of a task's image.
func ImageKey(batchID, taskID, format string) string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), "image/")
	switch ext {
	case "":
		ext = "png"
	case "jpg":
		ext = "jpeg"
	}
	return fmt.Sprintf("recipes/%s/%s.%s", batchID, taskID, ext)
}

// Persistence writes the finished recipe keyed by its task ID.
type Persistence struct {
	Repo domain.RecipeRepository
}

func (Persistence) Name() domain.StageName { return domain.StagePersistence }

func (a Persistence) Execute(ctx context.Context, in *Payload) (*Payload, error) {
	if err := requireRecipe(domain.StagePersistence, in); err != nil {
		return nil, err
	}
	out := in.clone()
	id, err := a.Repo.Upsert(ctx, out.Recipe, in.TaskID)
	if err != nil {
		return nil, Fail(domain.StagePersistence, err)
	}
	out.Recipe.RecordID = id
	return out, nil
}
