package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/moodmatch/internal/auth"
	"github.com/fpang/moodmatch/internal/chat"
)

// InitGeminiClient creates and validates a Gemini client for model.
// apiKey may be empty, in which case auth.GetAPIKey looks it up.
// Exits fatally on failure.
func InitGeminiClient(ctx context.Context, apiKey, model string) *genai.Client {
	if model == "" {
		model = chat.GetModelName()
	}
	if apiKey == "" {
		var err error
		if apiKey, err = auth.GetAPIKey(); err != nil {
			exitCaptionSetup(err, model)
		}
	}

	client, err := chat.NewClient(ctx, apiKey)
	if err != nil {
		exitCaptionSetup(err, model)
	}
	log.Info().Msg("connection successful - Gemini client initialized")

	if err := auth.ValidateAPIKey(ctx, client.Models, model); err != nil {
		exitCaptionSetup(err, model)
	}

	log.Info().Msg("API key validation complete - ready for operations")

	return client
}
