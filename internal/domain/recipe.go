package domain

// StageName identifies one capability in the recipe pipeline.
type StageName string

const (
	StageContent      StageName = "content"
	StageNutrition    StageName = "nutrition"
	StageImage        StageName = "image"
	StageImageStorage StageName = "image_storage"
	StagePersistence  StageName = "persistence"
)

// RecipeSpec carries the generation parameters of one recipe.
type RecipeSpec struct {
	MealType    string   `json:"mealType,omitempty"`
	Cuisine     string   `json:"cuisine,omitempty"`
	DietaryTags []string `json:"dietaryTags,omitempty"`
	MinCalories int      `json:"minCalories,omitempty"`
	MaxCalories int      `json:"maxCalories,omitempty"`
	MinProtein  int      `json:"minProtein,omitempty"`
	MaxCarbs    int      `json:"maxCarbs,omitempty"`
	MaxFat      int      `json:"maxFat,omitempty"`
	Servings    int      `json:"servings,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	// Variant distinguishes recipes generated from the same template.
	Variant int `json:"variant"`
}

// Nutrition is the per-serving macro profile of a recipe.
type Nutrition struct {
	Calories int     `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	CarbsG   float64 `json:"carbsG"`
	FatG     float64 `json:"fatG"`
	Verified bool    `json:"verified"`
}

// Ingredient is a single line of a recipe's shopping list.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// RecipeArtifact is the record produced by a successful pipeline run.
type RecipeArtifact struct {
	RecordID    string       `json:"recordId,omitempty"`
	TaskID      string       `json:"taskId"`
	BatchID     string       `json:"batchId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	MealType    string       `json:"mealType"`
	Cuisine     string       `json:"cuisine,omitempty"`
	DietaryTags []string     `json:"dietaryTags,omitempty"`
	Servings    int          `json:"servings"`
	PrepMinutes int          `json:"prepMinutes"`
	CookMinutes int          `json:"cookMinutes"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Nutrition   Nutrition    `json:"nutrition"`
	ImageKey    string       `json:"imageKey,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
}

// TaskOutcome enumerates the states of a recipe task.
type TaskOutcome string

const (
	TaskPending   TaskOutcome = "pending"
	TaskRunning   TaskOutcome = "running"
	TaskSucceeded TaskOutcome = "succeeded"
	TaskFailed    TaskOutcome = "failed"
)

// RecipeTask is one unit of work inside a batch.
type RecipeTask struct {
	ID          string            `json:"taskId"`
	BatchID     string            `json:"batchId"`
	Index       int               `json:"index"`
	Spec        RecipeSpec        `json:"spec"`
	StageIndex  int               `json:"stageIndex"`
	Outcome     TaskOutcome       `json:"outcome"`
	FailedStage StageName         `json:"failedStage,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Stopped     bool              `json:"stopped,omitempty"`
	Artifact    *RecipeArtifact   `json:"artifact,omitempty"`
	Skipped     []StageName       `json:"skipped,omitempty"`
	Attempts    map[StageName]int `json:"attempts,omitempty"`
}
