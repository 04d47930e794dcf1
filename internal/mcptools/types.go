package mcptools

// StartBatchInput is the input of the start_batch tool.
type StartBatchInput struct {
	Count                 int      `json:"count" jsonschema:"number of recipes to generate"`
	Mode                  string   `json:"mode" jsonschema:"batch mode: single (max 50), bulk (max 100) or bmad (max 500)"`
	MealType              string   `json:"mealType,omitempty" jsonschema:"breakfast, lunch, dinner or snack"`
	Cuisine               string   `json:"cuisine,omitempty" jsonschema:"cuisine style, e.g. thai"`
	DietaryTags           []string `json:"dietaryTags,omitempty" jsonschema:"dietary constraints such as vegan or gluten-free"`
	MinCalories           int      `json:"minCalories,omitempty" jsonschema:"minimum calories per serving"`
	MaxCalories           int      `json:"maxCalories,omitempty" jsonschema:"maximum calories per serving"`
	MinProtein            int      `json:"minProtein,omitempty" jsonschema:"minimum protein grams per serving"`
	MaxCarbs              int      `json:"maxCarbs,omitempty" jsonschema:"maximum carbohydrate grams per serving"`
	MaxFat                int      `json:"maxFat,omitempty" jsonschema:"maximum fat grams per serving"`
	Locale                string   `json:"locale,omitempty" jsonschema:"BCP 47 language tag for the recipe text, e.g. id"`
	EnableImageGeneration bool     `json:"enableImageGeneration,omitempty" jsonschema:"render a photo for each recipe"`
	EnableStorage         bool     `json:"enableStorage,omitempty" jsonschema:"store rendered photos"`
	EnableValidation      bool     `json:"enableValidation,omitempty" jsonschema:"verify nutrition against the bounds"`
	Concurrency           int      `json:"concurrency,omitempty" jsonschema:"worker count override"`
}

// StartBatchOutput is the output of the start_batch tool.
type StartBatchOutput struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// BatchIDInput names one batch.
type BatchIDInput struct {
	BatchID string `json:"batchId" jsonschema:"the batch identifier returned by start_batch"`
}

// BatchSummary is the tool view of a batch job.
type BatchSummary struct {
	BatchID     string `json:"batchId"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	InFlight    int    `json:"inFlight"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// ListBatchesInput is the input of the list_active_batches tool.
type ListBatchesInput struct {
	IncludeFinished bool `json:"includeFinished,omitempty" jsonschema:"also list retained finished batches"`
}

// ListBatchesOutput is the output of the list_active_batches tool.
type ListBatchesOutput struct {
	Batches []BatchSummary `json:"batches"`
}

// MetricsInput is the (empty) input of the batch_metrics tool.
type MetricsInput struct{}

// MetricsOutput is the output of the batch_metrics tool.
type MetricsOutput struct {
	ActiveBatchCount int            `json:"activeBatchCount"`
	Batches          int            `json:"batches"`
	ByStatus         map[string]int `json:"byStatus"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	SuccessRate      float64        `json:"successRate"`
}
