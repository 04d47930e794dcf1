package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mealplan/internal/domain"
)

// RecipeRequest describes one recipe to write.
type RecipeRequest struct {
	RequestID string
	Spec      domain.RecipeSpec
	Locale    string
}

type remoteRecipe struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Servings    int                 `json:"servings"`
	PrepMinutes int                 `json:"prepMinutes"`
	CookMinutes int                 `json:"cookMinutes"`
	Ingredients []domain.Ingredient `json:"ingredients"`
	Steps       []string            `json:"steps"`
	Nutrition   struct {
		Calories int     `json:"calories"`
		ProteinG float64 `json:"proteinG"`
		CarbsG   float64 `json:"carbsG"`
		FatG     float64 `json:"fatG"`
	} `json:"nutrition"`
}

// GenerateRecipe writes a recipe that honours the request's meal type,
// dietary tags and macro bounds.
func (c *Client) GenerateRecipe(ctx context.Context, req RecipeRequest) (*domain.RecipeArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticRecipe(req), nil
	}

	resp, err := c.generateContent(ctx, c.model, geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildRecipePrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			Temperature:      0.9,
		},
	})
	if err != nil {
		return nil, err
	}
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			var decoded remoteRecipe
			if err := json.Unmarshal([]byte(stripCodeFence(text)), &decoded); err != nil {
				return nil, fmt.Errorf("%w: decode recipe json: %v", domain.ErrProviderFailure, err)
			}
			if strings.TrimSpace(decoded.Title) == "" || len(decoded.Ingredients) == 0 {
				return nil, fmt.Errorf("%w: recipe missing title or ingredients", domain.ErrProviderFailure)
			}
			c.logger.Debug().Str("request_id", req.RequestID).Str("model", c.model).Msg("genai: generated remote recipe")
			return decoded.toArtifact(req.Spec), nil
		}
	}
	return nil, fmt.Errorf("%w: no recipe content returned", domain.ErrProviderFailure)
}

func (r remoteRecipe) toArtifact(spec domain.RecipeSpec) *domain.RecipeArtifact {
	servings := r.Servings
	if servings <= 0 {
		servings = defaultServings(spec)
	}
	return &domain.RecipeArtifact{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		MealType:    mealTypeOrDefault(spec.MealType),
		Cuisine:     spec.Cuisine,
		DietaryTags: slices.Clone(spec.DietaryTags),
		Servings:    servings,
		PrepMinutes: r.PrepMinutes,
		CookMinutes: r.CookMinutes,
		Ingredients: r.Ingredients,
		Steps:       r.Steps,
		Nutrition: domain.Nutrition{
			Calories: r.Nutrition.Calories,
			ProteinG: r.Nutrition.ProteinG,
			CarbsG:   r.Nutrition.CarbsG,
			FatG:     r.Nutrition.FatG,
		},
	}
}

func buildRecipePrompt(req RecipeRequest) string {
	spec := req.Spec
	lines := []string{
		fmt.Sprintf("Write one original %s recipe.", mealTypeOrDefault(spec.MealType)),
	}
	if spec.Cuisine != "" {
		lines = append(lines, fmt.Sprintf("Cuisine: %s.", spec.Cuisine))
	}
	if len(spec.DietaryTags) > 0 {
		lines = append(lines, fmt.Sprintf("It must be %s.", strings.Join(spec.DietaryTags, ", ")))
	}
	if spec.MinCalories > 0 || spec.MaxCalories > 0 {
		lines = append(lines, fmt.Sprintf("Calories per serving between %d and %d.", spec.MinCalories, calorieCeiling(spec)))
	}
	if spec.MinProtein > 0 {
		lines = append(lines, fmt.Sprintf("At least %dg protein per serving.", spec.MinProtein))
	}
	if spec.MaxCarbs > 0 {
		lines = append(lines, fmt.Sprintf("At most %dg carbohydrates per serving.", spec.MaxCarbs))
	}
	if spec.MaxFat > 0 {
		lines = append(lines, fmt.Sprintf("At most %dg fat per serving.", spec.MaxFat))
	}
	lines = append(lines,
		fmt.Sprintf("Serves %d. Variation #%d; avoid repeating earlier variations.", defaultServings(spec), spec.Variant+1),
		"Respond with JSON: {title, description, servings, prepMinutes, cookMinutes, ingredients:[{name, quantity, unit}], steps:[string], nutrition:{calories, proteinG, carbsG, fatG}}.",
	)
	if req.Locale != "" {
		lines = append(lines, "Locale: "+req.Locale)
	}
	return strings.Join(lines, "\n")
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

var (
	plantProteins  = []string{"chickpeas", "tofu", "red lentils", "tempeh", "black beans"}
	animalProteins = []string{"chicken thigh", "salmon", "turkey mince", "shrimp", "lean beef"}
	grainBases     = []string{"quinoa", "brown rice", "wholewheat couscous", "soba noodles", "farro"}
	glutenFree     = []string{"quinoa", "brown rice", "sweet potato", "buckwheat", "polenta"}
	vegetables     = []string{"spinach", "roasted peppers", "broccolini", "zucchini", "charred corn", "kale"}
	styles         = []string{"smoky", "herby", "zesty", "golden", "spiced", "garlicky"}
	methods        = []string{"skillet", "sheet-pan", "one-pot", "grain bowl", "stir-fry"}
)

var mealCalories = map[string]int{
	"breakfast": 450,
	"lunch":     600,
	"dinner":    700,
	"snack":     220,
}

func (c *Client) syntheticRecipe(req RecipeRequest) *domain.RecipeArtifact {
	spec := req.Spec
	seed := deterministicSeed(req.RequestID, spec.MealType, spec.Cuisine, strings.Join(spec.DietaryTags, ","), spec.Variant)
	pick := func(options []string, slot int) string {
		v, _ := strconv.ParseUint(seed[slot*2:slot*2+2], 16, 8)
		return options[int(v)%len(options)]
	}

	proteins := animalProteins
	if hasTag(spec.DietaryTags, "vegetarian", "vegan", "plant-based") {
		proteins = plantProteins
	}
	bases := grainBases
	if hasTag(spec.DietaryTags, "gluten-free", "gluten_free", "celiac") {
		bases = glutenFree
	}

	protein := pick(proteins, 0)
	base := pick(bases, 1)
	veg := pick(vegetables, 2)
	style := pick(styles, 3)
	method := pick(methods, 4)
	mealType := mealTypeOrDefault(spec.MealType)
	servings := defaultServings(spec)

	title := cases.Title(language.English).String(fmt.Sprintf("%s %s %s with %s", style, protein, method, base))
	nutrition := syntheticNutrition(spec)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Str("title", title).
		Msg("genai: generated synthetic recipe")

	return &domain.RecipeArtifact{
		Title:       title,
		Description: fmt.Sprintf("A %s %s %s built around %s, %s and %s.", style, cuisineOr(spec.Cuisine), mealType, protein, veg, base),
		MealType:    mealType,
		Cuisine:     spec.Cuisine,
		DietaryTags: slices.Clone(spec.DietaryTags),
		Servings:    servings,
		PrepMinutes: 10 + int(seed[5]%4)*5,
		CookMinutes: 15 + int(seed[6]%5)*5,
		Ingredients: []domain.Ingredient{
			{Name: protein, Quantity: math.Round(nutrition.ProteinG * float64(servings) * 4), Unit: "g"},
			{Name: base, Quantity: float64(75 * servings), Unit: "g"},
			{Name: veg, Quantity: float64(100 * servings), Unit: "g"},
			{Name: "olive oil", Quantity: 1, Unit: "tbsp"},
			{Name: "sea salt", Quantity: 0.5, Unit: "tsp"},
		},
		Steps: []string{
			fmt.Sprintf("Cook the %s according to the packet instructions.", base),
			fmt.Sprintf("Season the %s and sear in olive oil until cooked through.", protein),
			fmt.Sprintf("Add the %s and cook for 3-4 minutes.", veg),
			fmt.Sprintf("Divide between %d plates and serve.", servings),
		},
		Nutrition: nutrition,
	}
}

// syntheticNutrition aims for the middle of the requested calorie window and
// splits it 25/45/30 between protein, carbohydrate and fat before applying
// the protein floor and carb/fat ceilings.
func syntheticNutrition(spec domain.RecipeSpec) domain.Nutrition {
	target, ok := mealCalories[mealTypeOrDefault(spec.MealType)]
	if !ok {
		target = 600
	}
	switch {
	case spec.MinCalories > 0 && spec.MaxCalories > 0:
		target = (spec.MinCalories + spec.MaxCalories) / 2
	case spec.MaxCalories > 0 && target > spec.MaxCalories:
		target = spec.MaxCalories
	case spec.MinCalories > 0 && target < spec.MinCalories:
		target = spec.MinCalories
	}

	protein := math.Round(float64(target) * 0.25 / 4)
	if float64(spec.MinProtein) > protein {
		protein = float64(spec.MinProtein)
	}
	fat := math.Round(float64(target) * 0.30 / 9)
	if spec.MaxFat > 0 && fat > float64(spec.MaxFat) {
		fat = float64(spec.MaxFat)
	}
	carbs := math.Max(0, math.Round((float64(target)-protein*4-fat*9)/4))
	if spec.MaxCarbs > 0 && carbs > float64(spec.MaxCarbs) {
		carbs = float64(spec.MaxCarbs)
	}
	return domain.Nutrition{
		Calories: int(math.Round(protein*4 + carbs*4 + fat*9)),
		ProteinG: protein,
		CarbsG:   carbs,
		FatG:     fat,
	}
}

func calorieCeiling(spec domain.RecipeSpec) int {
	if spec.MaxCalories > 0 {
		return spec.MaxCalories
	}
	return 1200
}

func defaultServings(spec domain.RecipeSpec) int {
	if spec.Servings > 0 {
		return spec.Servings
	}
	return 2
}

func mealTypeOrDefault(mealType string) string {
	mealType = strings.ToLower(strings.TrimSpace(mealType))
	if mealType == "" {
		return "dinner"
	}
	return mealType
}

func cuisineOr(cuisine string) string {
	if cuisine == "" {
		return "weeknight"
	}
	return cuisine
}

func hasTag(tags []string, wanted ...string) bool {
	for _, tag := range tags {
		if slices.Contains(wanted, strings.ToLower(strings.TrimSpace(tag))) {
			return true
		}
	}
	return false
}
