// Package assets provides embedded prompt templates.
//
// Prompt text lives under prompts/ and is embedded at compile time so it can
// be edited without touching Go code.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// CaptionSystemPrompt is the system instruction for caption generation.
//
//go:embed prompts/caption-system.txt
var CaptionSystemPrompt string

//go:embed prompts/caption-request.txt
var captionRequestTemplate string

var captionRequestTmpl = template.Must(template.New("caption-request").Parse(captionRequestTemplate))

// CaptionPromptData holds the dynamic values injected into the caption
// request prompt. Empty fields are omitted from the rendered text.
type CaptionPromptData struct {
	Language        string // display name, e.g. "Korean"
	Mood            string
	Song            string // "Title by Artist"
	MetadataContext string // formatted EXIF hints
}

// RenderCaptionPrompt renders the per-request caption prompt.
func RenderCaptionPrompt(data CaptionPromptData) string {
	var buf bytes.Buffer
	// The template only reads string fields so execution cannot fail.
	_ = captionRequestTmpl.Execute(&buf, data)
	return buf.String()
}
