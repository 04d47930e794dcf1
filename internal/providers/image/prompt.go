package image

import (
	"fmt"
	"strings"

	"mealplan/internal/domain"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, text artefacts, watermark, hands, cutlery clutter"

// DefaultAspectRatio is the framing used for recipe cards.
const DefaultAspectRatio = "4:3"

var mealSettings = map[string]string{
	"breakfast": "bright morning window light on a linen tablecloth",
	"lunch":     "soft daylight on a light wooden table",
	"dinner":    "warm evening light on a dark stone surface",
	"snack":     "a casual overhead shot on a neutral countertop",
}

// BuildRecipePrompt converts a written recipe into a natural language
// instruction for a food photography model.
func BuildRecipePrompt(r domain.RecipeArtifact) string {
	var lines []string

	title := strings.TrimSpace(r.Title)
	if title != "" {
		lines = append(lines, fmt.Sprintf("Editorial food photograph of %q.", title))
	} else {
		lines = append(lines, "Editorial food photograph of a home-cooked dish.")
	}

	if desc := strings.TrimSpace(r.Description); desc != "" {
		lines = append(lines, desc)
	}

	if len(r.Ingredients) > 0 {
		names := make([]string, 0, 3)
		for _, ing := range r.Ingredients {
			if name := strings.TrimSpace(ing.Name); name != "" {
				names = append(names, name)
			}
			if len(names) == 3 {
				break
			}
		}
		if len(names) > 0 {
			lines = append(lines, "Visible ingredients: "+strings.Join(names, ", ")+".")
		}
	}

	if cuisine := strings.TrimSpace(r.Cuisine); cuisine != "" {
		lines = append(lines, fmt.Sprintf("Plating inspired by %s cuisine.", cuisine))
	}

	setting, ok := mealSettings[strings.ToLower(strings.TrimSpace(r.MealType))]
	if !ok {
		setting = mealSettings["dinner"]
	}
	lines = append(lines, fmt.Sprintf("Served for %d, shot in %s.", max(r.Servings, 1), setting))
	lines = append(lines, "Ensure the dish looks appetising, freshly plated and true to the recipe.")

	return strings.Join(lines, "\n")
}
