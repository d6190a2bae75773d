package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/fpang/moodmatch/internal/ids"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/rs/zerolog/log"
)

// Publish writes the post and resets the session. It is valid once a song,
// a caption or both have been confirmed, even if the user has since started
// looking for the other one.
//
// Every session carries one idempotency key, created on the first attempt
// and reused by retries until the session is reset, so a retry after an
// ambiguous failure cannot create a second post. On failure the stage is
// kept and Error is set.
//
// If the session is discarded while the write is in flight but the write
// still succeeds, the post is returned together with ErrSuperseded.
func (w *Workflow) Publish(ctx context.Context) (post *store.Post, st State, err error) {
	const op = "publish"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	w.mu.Lock()
	if !w.state.HasSelection() {
		defer w.mu.Unlock()
		return nil, w.snapshotLocked(), validationf(op, "choose a song or a caption before posting")
	}
	if w.state.Pending != "" && w.state.Pending != op {
		defer w.mu.Unlock()
		return nil, w.snapshotLocked(), validationf(op, "wait for %s to finish", w.state.Pending)
	}
	if w.idempotencyKey == "" {
		w.idempotencyKey = ids.WithPrefix("pub-")
	}
	key := w.idempotencyKey
	opCtx, gen := w.beginLocked(ctx, op)
	w.clearMessagesLocked()
	draft := &store.Post{
		AuthorID: w.user.ID,
		ImageURL: w.state.UploadedImageURL,
		Caption:  cloneString(w.state.ChosenCaption),
	}
	if w.state.ChosenSong != nil {
		draft.Song = w.state.ChosenSong.Song()
	}
	w.mu.Unlock()

	pubErr := w.writePost(opCtx, draft, key)

	w.mu.Lock()
	if !w.endLocked(gen) {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		if pubErr != nil {
			return nil, snap, superseded(op)
		}
		log.Warn().Str("postId", draft.ID).Msg("Post published after the session moved on")
		w.notify(ctx, draft)
		return draft, snap, superseded(op)
	}

	if pubErr != nil {
		w.setErrorLocked("Couldn't publish your post. Try again.")
		snap := w.snapshotLocked()
		w.mu.Unlock()
		log.Error().Err(pubErr).Str("idempotencyKey", key).Dur("duration", time.Since(start)).Msg("Publish failed")
		return nil, snap, transport(op, "publish failed", pubErr)
	}

	w.resetLocked()
	w.setStatusLocked("Posted!")
	snap := w.snapshotLocked()
	w.mu.Unlock()

	log.Info().
		Str("postId", draft.ID).
		Str("authorId", draft.AuthorID).
		Bool("hasSong", draft.Song != nil).
		Bool("hasCaption", draft.Caption != nil).
		Dur("duration", time.Since(start)).
		Msg("Post published")
	w.notify(ctx, draft)
	return draft, snap, nil
}

// writePost snapshots the author profile into the post and stores it.
func (w *Workflow) writePost(ctx context.Context, post *store.Post, key string) error {
	profile, err := w.deps.Documents.GetUserProfile(ctx, w.user.ID)
	if err != nil {
		return err
	}
	post.AuthorDisplayName = AuthorName(profile, w.user)
	if profile != nil {
		post.AuthorAvatarURL = profile.AvatarURL
	}
	return w.deps.Documents.CreatePost(ctx, post, key)
}

func (w *Workflow) notify(ctx context.Context, post *store.Post) {
	if w.deps.Notifier == nil {
		return
	}
	if err := w.deps.Notifier.PostPublished(context.WithoutCancel(ctx), post); err != nil {
		log.Warn().Err(err).Str("postId", post.ID).Msg("Failed to announce published post")
	}
}

// AuthorName picks the name shown on a post: the profile's display name,
// then its username, then the part of the login identifier before '@'.
func AuthorName(profile *store.Profile, user User) string {
	if profile != nil {
		if n := strings.TrimSpace(profile.DisplayName); n != "" {
			return n
		}
		if n := strings.TrimSpace(profile.Username); n != "" {
			return n
		}
	}
	login := strings.TrimSpace(user.LoginID)
	if local, _, ok := strings.Cut(login, "@"); ok && local != "" {
		return local
	}
	if login != "" {
		return login
	}
	return user.ID
}
