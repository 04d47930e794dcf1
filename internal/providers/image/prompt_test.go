package image

import (
	"strings"
	"testing"

	"mealplan/internal/domain"
)

func TestBuildRecipePromptIncludesRecipeDetails(t *testing.T) {
	prompt := BuildRecipePrompt(domain.RecipeArtifact{
		Title:       "Zesty Tofu Stir-Fry",
		Description: "A quick weeknight dinner.",
		MealType:    "Breakfast",
		Cuisine:     "thai",
		Servings:    2,
		Ingredients: []domain.Ingredient{{Name: "tofu"}, {Name: " "}, {Name: "rice"}, {Name: "kale"}, {Name: "lime"}},
	})

	for _, want := range []string{
		`"Zesty Tofu Stir-Fry"`,
		"A quick weeknight dinner.",
		"Visible ingredients: tofu, rice, kale.",
		"thai cuisine",
		"Served for 2",
		mealSettings["breakfast"],
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "lime") {
		t.Fatalf("prompt should list at most three ingredients:\n%s", prompt)
	}
}

func TestBuildRecipePromptDefaults(t *testing.T) {
	prompt := BuildRecipePrompt(domain.RecipeArtifact{MealType: "brunch"})
	if !strings.Contains(prompt, "home-cooked dish") {
		t.Fatalf("expected generic subject, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Served for 1") {
		t.Fatalf("expected at least one serving, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, mealSettings["dinner"]) {
		t.Fatalf("expected dinner setting fallback, got:\n%s", prompt)
	}
}
