package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/moodmatch/internal/ids"
	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/rs/zerolog/log"
)

// SelectImage asks the Picker for a photo from source and, on success,
// starts a new session with it and uploads it.
//
// A refused permission returns a PermissionDenied error and leaves the
// current session untouched. A cancelled picker returns ErrPickCanceled.
func (w *Workflow) SelectImage(ctx context.Context, source Source) (st State, err error) {
	const op = "selectImage"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	if source != SourceCamera && source != SourceLibrary {
		return w.State(), validationf(op, "unknown image source %q", source)
	}
	if w.deps.Picker == nil {
		return w.State(), validationf(op, "no image picker available")
	}

	img, err := w.deps.Picker.Pick(ctx, source)
	switch {
	case err == nil:
	case errors.Is(err, ErrPickCanceled), KindOf(err) == KindPermissionDenied:
		log.Info().Err(err).Str("source", string(source)).Msg("Image selection did not complete")
		return w.State(), err
	default:
		return w.State(), &Error{Kind: KindValidation, Op: op, Message: "could not read the selected image", Err: err}
	}

	return w.SetImage(ctx, img)
}

// SetImage starts a new session with a photo the caller already holds and
// uploads it. Any session in progress is discarded first.
func (w *Workflow) SetImage(ctx context.Context, img *SourceImage) (State, error) {
	const op = "setImage"
	if img == nil || len(img.Data) == 0 {
		return w.State(), validationf(op, "image is empty")
	}

	img = &SourceImage{
		URI:         img.URI,
		Width:       img.Width,
		Height:      img.Height,
		ContentType: img.ContentType,
		Data:        img.Data,
	}
	if img.ContentType == "" || img.ContentType == "application/octet-stream" {
		img.ContentType = imageutil.DetectContentType(img.Data)
	}
	if err := imageutil.Validate(img.ContentType, len(img.Data)); err != nil {
		return w.State(), &Error{Kind: KindValidation, Op: op, Message: "this photo can't be used", Err: err}
	}
	if img.Width == 0 || img.Height == 0 {
		if width, height, err := imageutil.Dimensions(img.Data); err == nil {
			img.Width, img.Height = width, height
		}
	}

	w.mu.Lock()
	w.resetLocked()
	w.state.SourceImage = img
	w.mu.Unlock()

	log.Info().
		Str("uri", img.URI).
		Str("contentType", img.ContentType).
		Int("size", len(img.Data)).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("Image selected, new session started")

	return w.UploadImage(ctx)
}

// UploadImage uploads the selected photo. It is valid from the initial stage
// with a selected image, which is how a failed upload is retried, and while
// an upload is already running, in which case the earlier upload is
// superseded.
func (w *Workflow) UploadImage(ctx context.Context) (st State, err error) {
	const op = "uploadImage"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	w.mu.Lock()
	img := w.state.SourceImage
	switch {
	case img == nil:
		w.mu.Unlock()
		return w.State(), validationf(op, "select an image first")
	case w.state.Stage != StageInitial && w.state.Stage != StageUploading:
		w.mu.Unlock()
		return w.State(), validationf(op, "image already uploaded")
	}
	opCtx, gen := w.beginLocked(ctx, op)
	w.transitionLocked(op, StageUploading)
	w.state.UploadProgress = 0
	w.state.UploadedImageURL = ""
	w.setStatusLocked("Uploading photo…")
	w.mu.Unlock()

	path := fmt.Sprintf("posts/%s/%s%s", w.user.ID, ids.New(), imageutil.Extension(img.ContentType))
	log.Debug().Str("path", path).Uint64("generation", gen).Msg("Upload started")

	var (
		url       string
		uploadErr error
		done      bool
	)
	for ev := range w.deps.Objects.Upload(opCtx, UploadRequest{Path: path, Data: img.Data, ContentType: img.ContentType}) {
		if ev.Done {
			url, uploadErr, done = ev.URL, ev.Err, true
			continue
		}
		w.mu.Lock()
		if gen == w.gen {
			if p := min(max(ev.Percent, 0), 100); p > w.state.UploadProgress {
				w.state.UploadProgress = p
			}
		}
		w.mu.Unlock()
	}
	if !done && uploadErr == nil {
		uploadErr = errors.New("upload ended without a result")
	}
	if uploadErr == nil && url == "" {
		uploadErr = errors.New("upload returned no URL")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.endLocked(gen) {
		log.Debug().Uint64("generation", gen).Msg("Stale upload result dropped")
		return w.snapshotLocked(), superseded(op)
	}

	if uploadErr != nil {
		w.transitionLocked(op, StageInitial)
		w.state.UploadProgress = 0
		w.setErrorLocked("Upload failed. Check your connection and try again.")
		log.Error().Err(uploadErr).Str("path", path).Dur("duration", time.Since(start)).Msg("Upload failed")
		return w.snapshotLocked(), transport(op, "upload failed", uploadErr)
	}

	w.state.UploadedImageURL = url
	w.state.UploadProgress = 100
	w.transitionLocked(op, StageImageUploaded)
	w.setStatusLocked("Photo uploaded")
	log.Info().Str("url", url).Dur("duration", time.Since(start)).Msg("Upload complete")
	return w.snapshotLocked(), nil
}
