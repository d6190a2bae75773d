package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/rs/zerolog/log"
)

// ChoosePreferences toggles the language and mood filters. Passing the
// currently selected value clears it; an empty value leaves that filter
// alone. Valid after upload, while browsing songs, and after a caption has
// been confirmed so a song can still be added.
func (w *Workflow) ChoosePreferences(lang Language, mood Mood) (State, error) {
	const op = "choosePreferences"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	switch w.state.Stage {
	case StageImageUploaded, StageSelectingPreferences, StageSelectingSong, StageCaptionConfirmed:
	default:
		return w.snapshotLocked(), validationf(op, "preferences can't be changed in stage %s", w.state.Stage)
	}
	if lang != "" && !slices.Contains(Languages, lang) {
		return w.snapshotLocked(), validationf(op, "unsupported language %q", lang)
	}
	if mood != "" && !slices.Contains(Moods, mood) {
		return w.snapshotLocked(), validationf(op, "unsupported mood %q", mood)
	}

	w.state.Preferences = w.state.Preferences.Toggle(lang, mood)
	w.state.PreviewSelection = nil
	w.transitionLocked(op, StageSelectingPreferences)
	w.clearMessagesLocked()
	log.Debug().
		Str("language", string(w.state.Preferences.Language)).
		Str("mood", string(w.state.Preferences.Mood)).
		Msg("Preferences updated")
	return w.snapshotLocked(), nil
}

// FetchRecommendations asks the recommendation service for songs matching
// the photo and the current preferences. Preferences are optional, so it is
// valid straight after upload. A second call while one is running
// supersedes the first.
//
// An empty result keeps the stage at selectingSong with a status message.
// A failure reverts to selectingPreferences and sets Error. When a song or
// caption is already confirmed, both outcomes return to that confirmed stage
// instead so the post can still be published.
func (w *Workflow) FetchRecommendations(ctx context.Context) (st State, err error) {
	const op = "fetchRecommendations"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	w.mu.Lock()
	switch w.state.Stage {
	case StageImageUploaded, StageSelectingPreferences, StageSelectingSong, StageCaptionConfirmed:
	default:
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "songs can't be fetched in stage %s", w.state.Stage)
	}
	if w.state.Pending != "" && w.state.Pending != op {
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "wait for %s to finish", w.state.Pending)
	}
	opCtx, gen := w.beginLocked(ctx, op)
	w.releasePreviewLocked()
	w.transitionLocked(op, StageSelectingSong)
	w.state.CandidateTracks = nil
	w.state.WindowStart = 0
	w.state.PreviewSelection = nil
	w.clearMessagesLocked()
	req := RecommendRequest{
		ImageURL:    w.state.UploadedImageURL,
		Language:    w.state.Preferences.Language,
		Mood:        w.state.Preferences.Mood,
		Image:       w.state.SourceImage.Data,
		ContentType: w.state.SourceImage.ContentType,
	}
	w.mu.Unlock()

	if data, ct, err := imageutil.Downscale(req.Image, RecommendMaxDimension); err == nil {
		req.Image, req.ContentType = data, ct
	} else {
		log.Debug().Err(err).Msg("Sending original image to recommender")
	}

	tracks, recErr := w.deps.Recommender.Recommend(opCtx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.endLocked(gen) {
		log.Debug().Uint64("generation", gen).Msg("Stale recommendations dropped")
		return w.snapshotLocked(), superseded(op)
	}

	if recErr != nil {
		w.transitionLocked(op, w.state.settledStage(StageSelectingPreferences))
		w.setErrorLocked("Couldn't load song recommendations. Try again.")
		log.Error().Err(recErr).Dur("duration", time.Since(start)).Msg("Recommendation request failed")
		return w.snapshotLocked(), transport(op, "recommendation request failed", recErr)
	}

	w.state.CandidateTracks = make([]Track, len(tracks))
	for i, t := range tracks {
		w.state.CandidateTracks[i] = cloneTrack(t)
	}
	switch {
	case len(tracks) == 0 && w.state.HasSelection():
		w.transitionLocked(op, w.state.settledStage(StageSelectingSong))
		w.setStatusLocked("No songs matched. Your earlier choice is kept.")
	case len(tracks) == 0:
		w.setStatusLocked("No songs matched. Try different preferences.")
	default:
		w.setStatusLocked(fmt.Sprintf("Found %d songs", len(tracks)))
	}
	log.Info().
		Int("tracks", len(tracks)).
		Str("language", string(req.Language)).
		Str("mood", string(req.Mood)).
		Dur("duration", time.Since(start)).
		Msg("Recommendations received")
	return w.snapshotLocked(), nil
}

// AdvanceSongPage moves the viewing window forward by PageSize, wrapping to
// the first page once it would start past the last candidate.
func (w *Workflow) AdvanceSongPage() (State, error) {
	const op = "advanceSongPage"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if w.state.Stage != StageSelectingSong {
		return w.snapshotLocked(), validationf(op, "no song list to page through")
	}

	next := w.state.WindowStart + PageSize
	if next >= len(w.state.CandidateTracks) {
		next = 0
	}
	w.state.WindowStart = next
	w.state.PreviewSelection = nil
	w.releasePreviewLocked()
	return w.snapshotLocked(), nil
}

// PreviewSong highlights one track from the current page, replacing any
// previous highlight.
func (w *Workflow) PreviewSong(track Track) (State, error) {
	const op = "previewSong"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if w.state.Stage != StageSelectingSong {
		return w.snapshotLocked(), validationf(op, "no song list to choose from")
	}
	for _, t := range w.state.Page() {
		if t.Key() == track.Key() {
			w.state.PreviewSelection = cloneTrackPtr(&t)
			return w.snapshotLocked(), nil
		}
	}
	return w.snapshotLocked(), validationf(op, "that song isn't on the current page")
}

// ConfirmSong attaches the highlighted track to the post. Without a
// highlight it changes nothing and returns a validation error.
func (w *Workflow) ConfirmSong() (State, error) {
	const op = "confirmSong"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if w.state.Stage != StageSelectingSong {
		return w.snapshotLocked(), validationf(op, "no song list to choose from")
	}
	if w.state.PreviewSelection == nil {
		return w.snapshotLocked(), validationf(op, "pick a song first")
	}

	w.state.ChosenSong = cloneTrackPtr(w.state.PreviewSelection)
	w.releasePreviewLocked()
	w.transitionLocked(op, confirmedStage(true, w.state.ChosenCaption != nil))
	w.setStatusLocked("Song added")
	log.Info().Str("track", w.state.ChosenSong.Key()).Msg("Song confirmed")
	return w.snapshotLocked(), nil
}

// RevertSongSelection clears the chosen song and returns to the existing
// song list without fetching again.
func (w *Workflow) RevertSongSelection() (State, error) {
	const op = "revertSongSelection"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if !w.state.Stage.Confirmed() && w.state.ChosenSong == nil {
		return w.snapshotLocked(), validationf(op, "nothing to change yet")
	}

	w.state.ChosenSong = nil
	w.state.PreviewSelection = nil
	w.transitionLocked(op, StageSelectingSong)
	w.clearMessagesLocked()
	return w.snapshotLocked(), nil
}

// PlayPreview opens the audio preview of a track, releasing the previous
// one first. Only one preview is held at a time. The stream lives until
// StopPreview, a page change, a confirmation, a new preview or a reset.
func (w *Workflow) PlayPreview(ctx context.Context, track Track) (st State, err error) {
	const op = "playPreview"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	w.mu.Lock()
	switch {
	case w.deps.Player == nil:
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "audio previews are not available")
	case !w.state.Stage.Uploaded():
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "no song list to preview")
	case track.PreviewURL == "":
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "this song has no preview")
	}
	w.releasePreviewLocked()
	pgen := w.previewGen
	// The stream must outlive the caller's request, so it only inherits
	// values from ctx. Release cancels it.
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.previewCancel = cancel
	w.mu.Unlock()

	h, openErr := w.deps.Player.Open(pctx, track.PreviewURL)

	w.mu.Lock()
	defer w.mu.Unlock()
	if pgen != w.previewGen {
		if h != nil {
			h.Close()
		}
		cancel()
		return w.snapshotLocked(), superseded(op)
	}
	if openErr != nil {
		w.previewCancel = nil
		cancel()
		w.setErrorLocked("Couldn't play the preview.")
		log.Warn().Err(openErr).Str("track", track.Key()).Msg("Preview failed to open")
		return w.snapshotLocked(), transport(op, "preview failed", openErr)
	}
	w.slot.Acquire(h)
	log.Debug().Str("track", track.Key()).Msg("Preview playing")
	return w.snapshotLocked(), nil
}

// StopPreview releases the audio preview, if any.
func (w *Workflow) StopPreview() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releasePreviewLocked()
	return w.snapshotLocked()
}
