package cli

import (
	"fmt"
	"strings"

	"github.com/fpang/moodmatch/internal/workflow"
)

// FormatTrack renders a track as "Name - Artist, Artist".
func FormatTrack(t workflow.Track) string {
	if len(t.ArtistNames) == 0 {
		return t.Name
	}
	return t.Name + " - " + strings.Join(t.ArtistNames, ", ")
}

// FormatPage renders the visible page of candidate tracks, numbered from 1.
// The highlighted track is marked with ">".
func FormatPage(st workflow.State) string {
	page := st.Page()
	if len(page) == 0 {
		return "  (no songs)\n"
	}
	var b strings.Builder
	for i, t := range page {
		marker := " "
		if st.PreviewSelection != nil && st.PreviewSelection.Key() == t.Key() {
			marker = ">"
		}
		extra := ""
		if t.PreviewURL == "" {
			extra = " (no preview)"
		}
		fmt.Fprintf(&b, " %s %d) %s%s\n", marker, i+1, FormatTrack(t), extra)
	}
	fmt.Fprintf(&b, "  showing %d-%d of %d\n", st.WindowStart+1, st.WindowStart+len(page), len(st.CandidateTracks))
	return b.String()
}

// FormatState renders a short summary of the session.
func FormatState(st workflow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\n", st.Stage)
	if st.SourceImage != nil {
		fmt.Fprintf(&b, "Photo: %s", st.SourceImage.URI)
		if st.SourceImage.Width > 0 {
			fmt.Fprintf(&b, " (%dx%d)", st.SourceImage.Width, st.SourceImage.Height)
		}
		b.WriteString("\n")
	}
	if st.Stage == workflow.StageUploading {
		fmt.Fprintf(&b, "Upload: %d%%\n", st.UploadProgress)
	}
	if st.UploadedImageURL != "" {
		fmt.Fprintf(&b, "Uploaded: %s\n", st.UploadedImageURL)
	}
	if st.Preferences.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", st.Preferences.Language.DisplayName())
	}
	if st.Preferences.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", st.Preferences.Mood)
	}
	if st.ChosenSong != nil {
		fmt.Fprintf(&b, "Song: %s\n", FormatTrack(*st.ChosenSong))
	}
	if st.CaptionSuggestion != nil && st.ChosenCaption == nil {
		fmt.Fprintf(&b, "Suggested caption: %s\n", *st.CaptionSuggestion)
	}
	if st.ChosenCaption != nil {
		fmt.Fprintf(&b, "Caption: %s\n", *st.ChosenCaption)
	}
	if st.StatusMessage != "" {
		fmt.Fprintf(&b, "%s\n", st.StatusMessage)
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", st.Error)
	}
	return b.String()
}
