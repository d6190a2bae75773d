package chat

import "os"

// Gemini Model IDs
//
// | Model Name                  | API Model ID                | Use Case                      |
// |-----------------------------|-----------------------------|-------------------------------|
// | Gemini 3 Flash (Preview)    | gemini-3-flash-preview      | Best for speed + intelligence |
// | Gemini 2.5 Flash            | gemini-2.5-flash            | Stable, balanced performance  |
// | Gemini 2.5 Flash-Lite       | gemini-2.5-flash-lite       | High-throughput, lowest cost  |
const (
	ModelGemini3FlashPreview = "gemini-3-flash-preview"
	ModelGemini25Flash       = "gemini-2.5-flash"
	ModelGemini25FlashLite   = "gemini-2.5-flash-lite"
)

// DefaultModelName is used for captions unless overridden.
const DefaultModelName = ModelGemini25Flash

// ModelEnvVar overrides the caption model.
const ModelEnvVar = "MOODMATCH_GEMINI_MODEL"

// GetModelName returns the Gemini model to use, resolved from:
// 1. MOODMATCH_GEMINI_MODEL environment variable (if set)
// 2. GEMINI_MODEL environment variable (if set)
// 3. Default: gemini-2.5-flash
func GetModelName() string {
	if env := os.Getenv(ModelEnvVar); env != "" {
		return env
	}
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
