package chat

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/fpang/moodmatch/internal/assets"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	reply    string
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func captionRequest(t *testing.T) workflow.CaptionRequest {
	return workflow.CaptionRequest{
		ImageURL:    "https://cdn.example.com/posts/u1/a.png",
		Image:       pngBytes(t, 32, 16),
		ContentType: "image/png",
		Preferences: workflow.Preferences{Language: workflow.LanguageKorean, Mood: workflow.MoodCalm},
		Song:        &workflow.Track{ID: "t1", Name: "Spring Day", ArtistNames: []string{"BTS"}},
	}
}

func TestGenerate(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"caption\": \"  봄날의 오후 \"}\n```"}
	c := NewCaptioner(gen, "test-model")

	got, err := c.Generate(context.Background(), captionRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "봄날의 오후", got)

	assert.Equal(t, "test-model", gen.model)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, assets.CaptionSystemPrompt, gen.config.SystemInstruction.Parts[0].Text)
	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Contains(t, parts[1].Text, "Korean")
	assert.Contains(t, parts[1].Text, "calm")
	assert.Contains(t, parts[1].Text, "Spring Day by BTS")
}

func TestGenerateEmptyCaption(t *testing.T) {
	for _, reply := range []string{`{"caption": ""}`, `{"caption": null}`, `{}`, "  "} {
		c := NewCaptioner(&fakeGenerator{reply: reply}, "m")
		got, err := c.Generate(context.Background(), captionRequest(t))
		require.NoError(t, err, reply)
		assert.Empty(t, got, reply)
	}
}

func TestGenerateErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := NewCaptioner(&fakeGenerator{err: boom}, "m")
	_, err := c.Generate(context.Background(), captionRequest(t))
	assert.ErrorIs(t, err, boom)

	c = NewCaptioner(&fakeGenerator{reply: "I cannot help with that."}, "m")
	_, err = c.Generate(context.Background(), captionRequest(t))
	assert.ErrorContains(t, err, "failed to parse caption response")
}

func TestGenerateURLOnly(t *testing.T) {
	gen := &fakeGenerator{reply: `{"caption":"hi"}`}
	c := NewCaptioner(gen, "m")
	req := captionRequest(t)
	req.Image = nil

	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	part := gen.contents[0].Parts[0]
	require.NotNil(t, part.FileData)
	assert.Equal(t, req.ImageURL, part.FileData.FileURI)

	req.ImageURL = ""
	_, err = c.Generate(context.Background(), req)
	assert.Error(t, err)
}

func TestGenerateUndecodableImageSentAsIs(t *testing.T) {
	gen := &fakeGenerator{reply: `{"caption":"hi"}`}
	req := captionRequest(t)
	req.Image = []byte("not really a heic")
	req.ContentType = "image/heic"

	_, err := NewCaptioner(gen, "m").Generate(context.Background(), req)
	require.NoError(t, err)
	blob := gen.contents[0].Parts[0].InlineData
	assert.Equal(t, "image/heic", blob.MIMEType)
	assert.Equal(t, req.Image, blob.Data)
}

func TestBuildCaptionPromptWithoutPreferences(t *testing.T) {
	prompt := BuildCaptionPrompt(workflow.CaptionRequest{ImageURL: "u"})
	assert.Contains(t, prompt, "default to English")
	assert.NotContains(t, prompt, "Mood:")
	assert.False(t, strings.Contains(prompt, "shared with the song"))
}

func TestGetModelName(t *testing.T) {
	t.Setenv(ModelEnvVar, "")
	t.Setenv("GEMINI_MODEL", "")
	assert.Equal(t, DefaultModelName, GetModelName())

	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash-lite")
	assert.Equal(t, "gemini-2.5-flash-lite", GetModelName())

	t.Setenv(ModelEnvVar, "gemini-3-flash-preview")
	assert.Equal(t, "gemini-3-flash-preview", GetModelName())
	assert.Equal(t, "gemini-3-flash-preview", NewCaptioner(nil, "").model)
}
