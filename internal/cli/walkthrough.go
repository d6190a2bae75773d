package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

// Walkthrough drives one workflow from a terminal menu. Each turn it
// prints the session and offers only the steps that make sense in the
// current stage; the workflow still enforces every precondition.
type Walkthrough struct {
	wf  *workflow.Workflow
	p   *Prompter
	out io.Writer

	// Published receives every post written during the walk-through.
	Published func(*store.Post)
}

// NewWalkthrough creates a walk-through over wf.
func NewWalkthrough(wf *workflow.Workflow, p *Prompter, out io.Writer) *Walkthrough {
	return &Walkthrough{wf: wf, p: p, out: out}
}

type step struct {
	label string
	show  func(st workflow.State) bool
	run   func(w *Walkthrough, ctx context.Context, st workflow.State) (workflow.State, error)
}

var errQuit = errors.New("quit")

func preferenceStage(st workflow.State) bool {
	switch st.Stage {
	case workflow.StageImageUploaded, workflow.StageSelectingPreferences,
		workflow.StageSelectingSong, workflow.StageCaptionConfirmed:
		return true
	}
	return false
}

var steps = []step{
	{
		label: "Pick a photo from the library",
		show:  func(st workflow.State) bool { return st.Stage == workflow.StageInitial },
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.SelectImage(ctx, workflow.SourceLibrary)
		},
	},
	{
		label: "Use the newest camera photo",
		show:  func(st workflow.State) bool { return st.Stage == workflow.StageInitial },
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.SelectImage(ctx, workflow.SourceCamera)
		},
	},
	{
		label: "Retry the upload",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageInitial && st.SourceImage != nil
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.UploadImage(ctx)
		},
	},
	{
		label: "Choose language and mood",
		show:  preferenceStage,
		run:   (*Walkthrough).choosePreferences,
	},
	{
		label: "Find songs",
		show:  preferenceStage,
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.FetchRecommendations(ctx)
		},
	},
	{
		label: "Highlight a song",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageSelectingSong && len(st.Page()) > 0
		},
		run: func(w *Walkthrough, ctx context.Context, st workflow.State) (workflow.State, error) {
			t, err := w.chooseTrack(st)
			if err != nil {
				return st, err
			}
			return w.wf.PreviewSong(t)
		},
	},
	{
		label: "Play a preview",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageSelectingSong && len(st.Page()) > 0
		},
		run: (*Walkthrough).playPreview,
	},
	{
		label: "Show more songs",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageSelectingSong && len(st.CandidateTracks) > workflow.PageSize
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.AdvanceSongPage()
		},
	},
	{
		label: "Use the highlighted song",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageSelectingSong && st.PreviewSelection != nil
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.ConfirmSong()
		},
	},
	{
		label: "Change the song",
		show: func(st workflow.State) bool {
			return st.ChosenSong != nil
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.RevertSongSelection()
		},
	},
	{
		label: "Suggest a caption",
		show: func(st workflow.State) bool {
			return st.Stage.Uploaded() && st.UploadedImageURL != "" &&
				st.Stage != workflow.StageSelectingCaption && st.ChosenCaption == nil
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.RequestCaption(ctx)
		},
	},
	{
		label: "Use this caption",
		show: func(st workflow.State) bool {
			return st.Stage == workflow.StageSelectingCaption && st.CaptionSuggestion != nil
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.ConfirmCaption()
		},
	},
	{
		label: "Suggest another caption",
		show:  func(st workflow.State) bool { return st.Stage == workflow.StageSelectingCaption },
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.RequestCaption(ctx)
		},
	},
	{
		label: "Change the caption",
		show: func(st workflow.State) bool {
			return st.ChosenCaption != nil && st.Stage != workflow.StageSelectingCaption
		},
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.RevertCaptionSelection(ctx)
		},
	},
	{
		label: "Keep what I chose",
		show:  func(st workflow.State) bool { return st.HasSelection() && !st.Stage.Confirmed() },
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.Back()
		},
	},
	{
		label: "Post it",
		show:  func(st workflow.State) bool { return st.HasSelection() },
		run:   (*Walkthrough).publish,
	},
	{
		label: "Start over",
		show:  func(st workflow.State) bool { return st.Stage != workflow.StageInitial || st.SourceImage != nil },
		run: func(w *Walkthrough, ctx context.Context, _ workflow.State) (workflow.State, error) {
			return w.wf.Discard(), nil
		},
	},
	{
		label: "Quit",
		show:  func(workflow.State) bool { return true },
		run: func(w *Walkthrough, ctx context.Context, st workflow.State) (workflow.State, error) {
			return st, errQuit
		},
	},
}

// Run loops until the user quits or input ends. The session is discarded
// on the way out.
func (w *Walkthrough) Run(ctx context.Context) error {
	defer w.wf.Discard()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := w.wf.State()
		fmt.Fprintf(w.out, "\n%s", FormatState(st))
		if st.Stage == workflow.StageSelectingSong {
			fmt.Fprint(w.out, FormatPage(st))
		}

		var offered []step
		var labels []string
		for _, s := range steps {
			if s.show(st) {
				offered = append(offered, s)
				labels = append(labels, s.label)
			}
		}
		i, err := w.p.Choose("Next", labels, 0)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = offered[i].run(w, ctx, st)
		switch {
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			w.report(err)
		}
	}
}

// report prints the user-facing part of an operation error.
func (w *Walkthrough) report(err error) {
	var werr *workflow.Error
	switch {
	case errors.Is(err, workflow.ErrPickCanceled):
		fmt.Fprintln(w.out, "No photo selected.")
	case errors.As(err, &werr):
		log.Debug().Err(err).Msg("Operation failed")
		if werr.Kind == workflow.KindTransport {
			// State.Error already carries the message.
			return
		}
		fmt.Fprintf(w.out, "! %s\n", werr.Message)
	default:
		fmt.Fprintf(w.out, "! %v\n", err)
	}
}

func (w *Walkthrough) choosePreferences(ctx context.Context, st workflow.State) (workflow.State, error) {
	langs := []string{"(keep)"}
	for _, l := range workflow.Languages {
		langs = append(langs, l.DisplayName())
	}
	li, err := w.p.Choose("Language", langs, 0)
	if err != nil {
		return st, err
	}
	moods := []string{"(keep)"}
	for _, m := range workflow.Moods {
		moods = append(moods, string(m))
	}
	mi, err := w.p.Choose("Mood", moods, 0)
	if err != nil {
		return st, err
	}

	var lang workflow.Language
	var mood workflow.Mood
	if li > 0 {
		lang = workflow.Languages[li-1]
	}
	if mi > 0 {
		mood = workflow.Moods[mi-1]
	}
	return w.wf.ChoosePreferences(lang, mood)
}

func (w *Walkthrough) chooseTrack(st workflow.State) (workflow.Track, error) {
	page := st.Page()
	labels := make([]string, len(page))
	for i, t := range page {
		labels[i] = FormatTrack(t)
	}
	i, err := w.p.Choose("Song", labels, 0)
	if err != nil {
		return workflow.Track{}, err
	}
	return page[i], nil
}

func (w *Walkthrough) playPreview(ctx context.Context, st workflow.State) (workflow.State, error) {
	t, err := w.chooseTrack(st)
	if err != nil {
		return st, err
	}
	st, err = w.wf.PlayPreview(ctx, t)
	if err != nil {
		return st, err
	}
	fmt.Fprintf(w.out, "Playing %s\n  %s\n", FormatTrack(t), t.PreviewURL)
	_, err = w.p.Line("Press Enter to stop ")
	return w.wf.StopPreview(), err
}

func (w *Walkthrough) publish(ctx context.Context, st workflow.State) (workflow.State, error) {
	post, st, err := w.wf.Publish(ctx)
	if post != nil {
		fmt.Fprintf(w.out, "Posted %s\n", post.ID)
		if w.Published != nil {
			w.Published(post)
		}
	}
	return st, err
}
