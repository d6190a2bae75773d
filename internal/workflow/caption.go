package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RequestCaption asks the caption service for one suggestion for the
// uploaded photo. Any previous suggestion is discarded. Valid from any stage
// after the upload; a call while one is running supersedes it.
//
// An empty caption keeps the stage at selectingCaption with a status message
// and no error. A failure also stays in selectingCaption so the user can
// retry. If a song or caption was already confirmed, both outcomes go back
// to that confirmed stage; RequestCaption is valid from there too.
func (w *Workflow) RequestCaption(ctx context.Context) (st State, err error) {
	const op = "requestCaption"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	w.mu.Lock()
	if !w.state.Stage.Uploaded() || w.state.UploadedImageURL == "" {
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "upload a photo first")
	}
	if w.state.Pending != "" && w.state.Pending != op && w.state.Pending != "fetchRecommendations" {
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "wait for %s to finish", w.state.Pending)
	}
	opCtx, gen := w.beginLocked(ctx, op)
	w.transitionLocked(op, StageSelectingCaption)
	w.state.CaptionSuggestion = nil
	w.state.PreviewSelection = nil
	w.clearMessagesLocked()
	req := CaptionRequest{
		ImageURL:    w.state.UploadedImageURL,
		Image:       w.state.SourceImage.Data,
		ContentType: w.state.SourceImage.ContentType,
		Preferences: w.state.Preferences,
		Song:        cloneTrackPtr(w.state.ChosenSong),
	}
	w.mu.Unlock()

	caption, capErr := w.deps.Captioner.Generate(opCtx, req)
	caption = strings.TrimSpace(caption)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.endLocked(gen) {
		log.Debug().Uint64("generation", gen).Msg("Stale caption dropped")
		return w.snapshotLocked(), superseded(op)
	}

	if capErr != nil {
		w.transitionLocked(op, w.state.settledStage(StageSelectingCaption))
		w.setErrorLocked("Couldn't write a caption. Try again.")
		log.Error().Err(capErr).Dur("duration", time.Since(start)).Msg("Caption request failed")
		return w.snapshotLocked(), transport(op, "caption request failed", capErr)
	}
	if caption == "" {
		w.transitionLocked(op, w.state.settledStage(StageSelectingCaption))
		w.setStatusLocked("No caption this time. Try again.")
		log.Info().Dur("duration", time.Since(start)).Msg("Caption service returned no caption")
		return w.snapshotLocked(), nil
	}

	w.state.CaptionSuggestion = &caption
	w.setStatusLocked("Caption ready")
	log.Info().Int("length", len(caption)).Dur("duration", time.Since(start)).Msg("Caption received")
	return w.snapshotLocked(), nil
}

// ConfirmCaption attaches the current suggestion to the post.
func (w *Workflow) ConfirmCaption() (State, error) {
	const op = "confirmCaption"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if w.state.Stage != StageSelectingCaption {
		return w.snapshotLocked(), validationf(op, "no caption to confirm")
	}
	if w.state.CaptionSuggestion == nil {
		return w.snapshotLocked(), validationf(op, "there is no caption suggestion yet")
	}

	w.state.ChosenCaption = w.state.CaptionSuggestion
	w.state.CaptionSuggestion = nil
	w.transitionLocked(op, confirmedStage(w.state.ChosenSong != nil, true))
	w.setStatusLocked("Caption added")
	return w.snapshotLocked(), nil
}

// RevertCaptionSelection clears the chosen caption and requests a fresh one.
// Captions are not kept beyond one suggestion, so this always calls the
// caption service again.
func (w *Workflow) RevertCaptionSelection(ctx context.Context) (State, error) {
	const op = "revertCaptionSelection"
	w.mu.Lock()
	if err := w.idleLocked(op); err != nil {
		defer w.mu.Unlock()
		return w.snapshotLocked(), err
	}
	if !w.state.Stage.Confirmed() && w.state.ChosenCaption == nil {
		defer w.mu.Unlock()
		return w.snapshotLocked(), validationf(op, "nothing to change yet")
	}
	w.state.ChosenCaption = nil
	w.transitionLocked(op, confirmedStage(w.state.ChosenSong != nil, false))
	w.mu.Unlock()

	return w.RequestCaption(ctx)
}
