// Package workflow implements the post-creation state machine that walks a
// user from picking a photo, through optional song and caption enrichment,
// to a published post.
//
// A Workflow holds exactly one session. Operations are safe to call from
// multiple goroutines: every network operation is tagged with a generation
// number and runs under a cancellable context. Starting a newer network
// operation, picking a new image or discarding the session cancels the one
// in flight, and its late result is dropped with ErrSuperseded. Synchronous
// operations are rejected while a network operation is pending.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/moodmatch/internal/metrics"
	"github.com/fpang/moodmatch/internal/preview"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Workflow calls. Picker, Player and Notifier
// are optional.
type Deps struct {
	Objects     ObjectStore
	Recommender RecommendationService
	Captioner   CaptionService
	Documents   DocumentStore
	Picker      Picker
	Player      preview.Player
	Notifier    Notifier
}

// RecommendMaxDimension bounds the longest side of the photo sent to the
// recommendation service.
const RecommendMaxDimension = 1024

// Workflow is one post-creation session.
type Workflow struct {
	user User
	deps Deps

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc

	slot          preview.Slot
	previewGen    uint64
	previewCancel context.CancelFunc

	idempotencyKey string
}

// New creates a Workflow in the initial stage for user.
func New(user User, deps Deps) *Workflow {
	return &Workflow{
		user:  user,
		deps:  deps,
		state: State{Stage: StageInitial},
	}
}

// User returns the account that owns the session.
func (w *Workflow) User() User {
	return w.user
}

// State returns a snapshot of the session.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Discard resets the session to the initial stage from any stage. Any
// operation in flight is cancelled and the audio preview is released.
// Uploaded but unpublished images are left in object storage.
func (w *Workflow) Discard() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	from := w.state.Stage
	w.resetLocked()
	log.Debug().Str("from", string(from)).Uint64("generation", w.gen).Msg("Session discarded")
	observe("discard", time.Now(), nil)
	return w.snapshotLocked()
}

// Back leaves the song or caption flow and returns to the confirmed stage
// that matches the selections already made. Candidate tracks are kept; an
// unconfirmed caption suggestion is dropped. Calling it from a confirmed
// stage changes nothing.
func (w *Workflow) Back() (State, error) {
	const op = "back"
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.idleLocked(op); err != nil {
		return w.snapshotLocked(), err
	}
	if !w.state.HasSelection() {
		return w.snapshotLocked(), validationf(op, "nothing chosen to go back to")
	}
	if w.state.Stage.Confirmed() {
		return w.snapshotLocked(), nil
	}

	w.releasePreviewLocked()
	w.state.PreviewSelection = nil
	w.state.CaptionSuggestion = nil
	w.transitionLocked(op, w.state.settledStage(w.state.Stage))
	w.clearMessagesLocked()
	return w.snapshotLocked(), nil
}

// CurrentPreview returns the open audio preview, if any.
func (w *Workflow) CurrentPreview() (preview.Handle, bool) {
	return w.slot.Current()
}

func (w *Workflow) snapshotLocked() State {
	s := w.state.clone()
	s.Generation = w.gen
	_, s.PreviewPlaying = w.slot.Current()
	return s
}

// resetLocked returns to an empty initial session.
func (w *Workflow) resetLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
	w.releasePreviewLocked()
	w.state = State{Stage: StageInitial}
	w.idempotencyKey = ""
}

// beginLocked starts a network operation, cancelling any in flight.
func (w *Workflow) beginLocked(parent context.Context, op string) (context.Context, uint64) {
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	w.gen++
	w.cancel = cancel
	w.state.Pending = op
	return ctx, w.gen
}

// endLocked finishes the operation tagged gen. It returns false when a newer
// operation or a reset has taken over, in which case the caller must drop
// its result.
func (w *Workflow) endLocked(gen uint64) bool {
	if gen != w.gen {
		return false
	}
	w.cancel()
	w.cancel = nil
	w.state.Pending = ""
	return true
}

// idleLocked rejects synchronous operations while a network call is pending.
func (w *Workflow) idleLocked(op string) error {
	if w.state.Pending != "" {
		return validationf(op, "wait for %s to finish", w.state.Pending)
	}
	return nil
}

func (w *Workflow) transitionLocked(op string, to Stage) {
	if w.state.Stage == to {
		return
	}
	log.Debug().
		Str("op", op).
		Str("from", string(w.state.Stage)).
		Str("to", string(to)).
		Uint64("generation", w.gen).
		Msg("Stage transition")
	w.state.Stage = to
}

// setErrorLocked and setStatusLocked keep Error and StatusMessage mutually
// exclusive.
func (w *Workflow) setErrorLocked(msg string) {
	w.state.Error = msg
	w.state.StatusMessage = ""
}

func (w *Workflow) setStatusLocked(msg string) {
	w.state.StatusMessage = msg
	w.state.Error = ""
}

func (w *Workflow) clearMessagesLocked() {
	w.state.Error = ""
	w.state.StatusMessage = ""
}

func (w *Workflow) releasePreviewLocked() {
	w.previewGen++
	if w.previewCancel != nil {
		w.previewCancel()
		w.previewCancel = nil
	}
	w.slot.Release()
}

// observe emits one EMF document per operation.
func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", op).
		Dimension("Result", result).
		Since("OperationLatencyMs", start).
		Count("OperationCount").
		Flush()
}
