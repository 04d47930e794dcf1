// Package nutrition checks generated recipes against per-serving macro
// targets.
package nutrition

import (
	"context"
	"fmt"
	"math"
	"strings"

	"mealplan/internal/domain"
)

// Validator is a rule-based nutrition checker. It has no state beyond its
// tolerances and is safe for concurrent use.
type Validator struct {
	// Tolerance is the allowed relative gap between declared calories and
	// the Atwater estimate (4/4/9 kcal per gram).
	Tolerance float64
	// Slack is the absolute calorie gap always allowed.
	Slack int
}

// NewValidator returns a validator with a 15% / 50 kcal tolerance.
func NewValidator() *Validator {
	return &Validator{Tolerance: 0.15, Slack: 50}
}

// Validate verifies recipe nutrition for consistency and against the spec's
// bounds. It returns the verified profile with calories normalised to the
// Atwater estimate.
func (v *Validator) Validate(ctx context.Context, spec domain.RecipeSpec, recipe domain.RecipeArtifact) (domain.Nutrition, error) {
	if err := ctx.Err(); err != nil {
		return domain.Nutrition{}, err
	}
	n := recipe.Nutrition
	if n.Calories <= 0 && n.ProteinG <= 0 && n.CarbsG <= 0 && n.FatG <= 0 {
		return domain.Nutrition{}, fmt.Errorf("%w: recipe %q has no nutrition data", domain.ErrProviderFailure, recipe.Title)
	}
	if n.ProteinG < 0 || n.CarbsG < 0 || n.FatG < 0 {
		return domain.Nutrition{}, fmt.Errorf("%w: negative macro values", domain.ErrNutritionOutOfRange)
	}

	estimate := Atwater(n)
	gap := math.Abs(float64(n.Calories - estimate))
	allowed := math.Max(float64(v.Slack), v.Tolerance*float64(n.Calories))
	if gap > allowed {
		return domain.Nutrition{}, fmt.Errorf("%w: declared %d kcal but macros add up to %d kcal", domain.ErrNutritionOutOfRange, n.Calories, estimate)
	}

	var problems []string
	if spec.MinCalories > 0 && estimate < spec.MinCalories {
		problems = append(problems, fmt.Sprintf("calories %d below %d", estimate, spec.MinCalories))
	}
	if spec.MaxCalories > 0 && estimate > spec.MaxCalories {
		problems = append(problems, fmt.Sprintf("calories %d above %d", estimate, spec.MaxCalories))
	}
	if spec.MinProtein > 0 && n.ProteinG < float64(spec.MinProtein) {
		problems = append(problems, fmt.Sprintf("protein %.0fg below %dg", n.ProteinG, spec.MinProtein))
	}
	if spec.MaxCarbs > 0 && n.CarbsG > float64(spec.MaxCarbs) {
		problems = append(problems, fmt.Sprintf("carbs %.0fg above %dg", n.CarbsG, spec.MaxCarbs))
	}
	if spec.MaxFat > 0 && n.FatG > float64(spec.MaxFat) {
		problems = append(problems, fmt.Sprintf("fat %.0fg above %dg", n.FatG, spec.MaxFat))
	}
	if len(problems) > 0 {
		return domain.Nutrition{}, fmt.Errorf("%w: %s", domain.ErrNutritionOutOfRange, strings.Join(problems, "; "))
	}

	n.Calories = estimate
	n.Verified = true
	return n, nil
}

// Atwater estimates calories from macros.
func Atwater(n domain.Nutrition) int {
	return int(math.Round(4*n.ProteinG + 4*n.CarbsG + 9*n.FatG))
}
