// Package chat generates photo captions with Gemini.
//
// The photo is sent inline alongside a rendered request prompt that carries
// the user's language and mood, the chosen song and whatever EXIF hints the
// photo holds. Gemini answers with a small JSON object that is decoded
// leniently, so code fences or chatter around the object are tolerated.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/moodmatch/internal/assets"
	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/fpang/moodmatch/internal/jsonutil"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// MaxImageDimension bounds the photo sent to Gemini.
const MaxImageDimension = 1536

// Generator is the subset of *genai.Models used for captions.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Captioner implements workflow.CaptionService on top of Gemini.
type Captioner struct {
	gen   Generator
	model string
}

// NewClient creates a Gemini API client for the given key.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewCaptioner returns a captioner using model, or GetModelName() when model
// is empty.
func NewCaptioner(gen Generator, model string) *Captioner {
	if model == "" {
		model = GetModelName()
	}
	return &Captioner{gen: gen, model: model}
}

type captionResult struct {
	Caption *string `json:"caption"`
}

// Generate returns one caption for the photo. An empty string means Gemini
// declined to caption it.
func (c *Captioner) Generate(ctx context.Context, req workflow.CaptionRequest) (string, error) {
	imagePart, err := buildImagePart(req)
	if err != nil {
		return "", err
	}

	prompt := BuildCaptionPrompt(req)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.CaptionSystemPrompt}},
		},
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{imagePart, {Text: prompt}},
	}}

	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Msg("Starting Gemini API call for caption generation")

	callStart := time.Now()
	resp, err := c.gen.GenerateContent(ctx, c.model, contents, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Failed to generate caption from Gemini")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	caption, err := parseCaptionResponse(resp.Text())
	if err != nil {
		return "", err
	}

	log.Info().
		Int("caption_length", len(caption)).
		Dur("duration", duration).
		Msg("Caption generated")
	return caption, nil
}

// BuildCaptionPrompt renders the per-request prompt text.
func BuildCaptionPrompt(req workflow.CaptionRequest) string {
	data := assets.CaptionPromptData{
		Mood: string(req.Preferences.Mood),
	}
	if req.Preferences.Language != "" {
		data.Language = req.Preferences.Language.DisplayName()
	}
	if req.Song != nil && req.Song.Name != "" {
		data.Song = req.Song.Name
		if len(req.Song.ArtistNames) > 0 {
			data.Song += " by " + strings.Join(req.Song.ArtistNames, ", ")
		}
	}
	if len(req.Image) > 0 {
		hints, err := imageutil.ExtractHints(req.Image)
		if err != nil {
			log.Debug().Err(err).Msg("No EXIF hints for caption prompt")
		}
		data.MetadataContext = hints.Context()
	}
	return assets.RenderCaptionPrompt(data)
}

func buildImagePart(req workflow.CaptionRequest) (*genai.Part, error) {
	if len(req.Image) == 0 {
		if req.ImageURL == "" {
			return nil, fmt.Errorf("caption request has neither image data nor URL")
		}
		return &genai.Part{
			FileData: &genai.FileData{MIMEType: req.ContentType, FileURI: req.ImageURL},
		}, nil
	}

	data, contentType := req.Image, req.ContentType
	if scaled, ct, err := imageutil.Downscale(req.Image, MaxImageDimension); err == nil {
		data, contentType = scaled, ct
	} else {
		// Only HEIC/HEIF has no local decoder; Gemini accepts it as-is.
		log.Debug().Err(err).Str("content_type", req.ContentType).Msg("Sending caption image without downscaling")
	}
	return &genai.Part{
		InlineData: &genai.Blob{MIMEType: contentType, Data: data},
	}, nil
}

func parseCaptionResponse(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	result, err := jsonutil.Decode[captionResult](text)
	if err != nil {
		log.Debug().Err(err).Int("response_length", len(text)).Msg("Failed to parse caption response")
		return "", fmt.Errorf("failed to parse caption response: %w", err)
	}
	if result.Caption == nil {
		return "", nil
	}
	return strings.TrimSpace(*result.Caption), nil
}
