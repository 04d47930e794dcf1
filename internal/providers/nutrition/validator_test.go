package nutrition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

func TestValidate(t *testing.T) {
	balanced := domain.Nutrition{Calories: 500, ProteinG: 35, CarbsG: 52, FatG: 17}

	tests := []struct {
		name    string
		spec    domain.RecipeSpec
		n       domain.Nutrition
		wantErr error
	}{
		{name: "no bounds", n: balanced},
		{name: "within bounds", spec: domain.RecipeSpec{MinCalories: 400, MaxCalories: 600, MinProtein: 30, MaxFat: 20}, n: balanced},
		{name: "too many calories", spec: domain.RecipeSpec{MaxCalories: 450}, n: balanced, wantErr: domain.ErrNutritionOutOfRange},
		{name: "too little protein", spec: domain.RecipeSpec{MinProtein: 40}, n: balanced, wantErr: domain.ErrNutritionOutOfRange},
		{name: "carbs over", spec: domain.RecipeSpec{MaxCarbs: 30}, n: balanced, wantErr: domain.ErrNutritionOutOfRange},
		{name: "inconsistent macros", n: domain.Nutrition{Calories: 900, ProteinG: 10, CarbsG: 10, FatG: 5}, wantErr: domain.ErrNutritionOutOfRange},
		{name: "missing data", n: domain.Nutrition{}, wantErr: domain.ErrProviderFailure},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(context.Background(), tt.spec, domain.RecipeArtifact{Title: "x", Nutrition: tt.n})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Verified)
			assert.Equal(t, Atwater(tt.n), got.Calories)
		})
	}
}

func TestAtwater(t *testing.T) {
	assert.Equal(t, 501, Atwater(domain.Nutrition{ProteinG: 35, CarbsG: 52, FatG: 17}))
}
