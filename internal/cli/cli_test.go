package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/moodmatch/internal/auth"
	"github.com/fpang/moodmatch/internal/metrics"
	"github.com/fpang/moodmatch/internal/workflow"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func TestPrompterChoose(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("7\nabc\n2\n\nsad\n"), &out)
	opts := []string{"happy", "sad", "calm"}

	i, err := p.Choose("Mood", opts, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Contains(t, out.String(), "Enter a number between 1 and 3.")

	i, err = p.Choose("Mood", opts, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, i, "blank picks the default")

	i, err = p.Choose("Mood", opts, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, i, "names match case-insensitively")

	_, err = p.Choose("Mood", opts, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrompterLastLineWithoutNewline(t *testing.T) {
	p := NewPrompter(strings.NewReader("  hello  "), io.Discard)
	got, err := p.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = p.Line("> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrompterConfirm(t *testing.T) {
	p := NewPrompter(strings.NewReader("\ny\nno\n"), io.Discard)
	for _, want := range []bool{true, true, false} {
		got, err := p.Confirm("Publish?", true)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveDirectory(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	file := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = ResolveDirectory(file)
	assert.Error(t, err)

	_, err = ResolveDirectory(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCaptionSetupHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&auth.ValidationError{Type: auth.ErrTypeNoKey}, "GEMINI_API_KEY"},
		{&auth.ValidationError{Type: auth.ErrTypeInvalidKey}, "rejected"},
		{&auth.ValidationError{Type: auth.ErrTypeQuotaExceeded}, "quota"},
		{fmt.Errorf("startup: %w", &auth.ValidationError{Type: auth.ErrTypeNetworkError}), "unreachable"},
		{&auth.ValidationError{Type: auth.ErrTypeUnknown}, `"gemini-test"`},
		{errors.New("boom"), "Couldn't reach Gemini"},
	}
	for _, tt := range tests {
		assert.Contains(t, captionSetupHint(tt.err, "gemini-test"), tt.want)
	}
}

func TestFormatPage(t *testing.T) {
	tracks := []workflow.Track{
		{ID: "1", Name: "Spring Day", ArtistNames: []string{"BTS"}, PreviewURL: "https://p/1"},
		{ID: "2", Name: "Ditto", ArtistNames: []string{"NewJeans"}},
		{ID: "3", Name: "Untitled"},
		{ID: "4", Name: "Love Dive", ArtistNames: []string{"IVE"}},
	}
	st := workflow.State{CandidateTracks: tracks, PreviewSelection: &tracks[1]}

	got := FormatPage(st)
	assert.Contains(t, got, "   1) Spring Day - BTS\n")
	assert.Contains(t, got, " > 2) Ditto - NewJeans (no preview)\n")
	assert.Contains(t, got, "   3) Untitled (no preview)\n")
	assert.Contains(t, got, "showing 1-3 of 4")

	st.WindowStart = 3
	assert.Contains(t, FormatPage(st), "showing 4-4 of 4")
	assert.Equal(t, "  (no songs)\n", FormatPage(workflow.State{}))
}

func TestFormatState(t *testing.T) {
	caption := "봄날의 기억"
	st := workflow.State{
		Stage:            workflow.StageBothConfirmed,
		UploadedImageURL: "https://cdn/p.jpg",
		Preferences:      workflow.Preferences{Language: workflow.LanguageKorean, Mood: workflow.MoodCalm},
		ChosenSong:       &workflow.Track{Name: "Spring Day", ArtistNames: []string{"BTS"}},
		ChosenCaption:    &caption,
		Error:            "Couldn't publish your post. Try again.",
	}
	got := FormatState(st)
	assert.Contains(t, got, "Stage: bothConfirmed")
	assert.Contains(t, got, "Language: Korean")
	assert.Contains(t, got, "Mood: calm")
	assert.Contains(t, got, "Song: Spring Day - BTS")
	assert.Contains(t, got, "Caption: 봄날의 기억")
	assert.Contains(t, got, "Error: Couldn't publish")
	assert.NotContains(t, got, "Suggested caption")
}
