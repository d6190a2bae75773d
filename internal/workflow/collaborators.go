package workflow

import (
	"context"

	"github.com/fpang/moodmatch/internal/store"
)

// UploadRequest describes one object upload.
type UploadRequest struct {
	Path        string
	Data        []byte
	ContentType string
}

// UploadEvent is emitted by ObjectStore.Upload. Progress events carry only
// Percent. The last event has Done set and either URL or Err.
type UploadEvent struct {
	Percent int
	Done    bool
	URL     string
	Err     error
}

// ObjectStore stores uploaded photos.
//
// Upload returns a channel of progress events terminated by exactly one Done
// event, after which the channel is closed. Cancelling ctx aborts the
// transfer; the producer still sends a Done event with the context error if
// the receiver is listening, and always closes the channel.
type ObjectStore interface {
	Upload(ctx context.Context, req UploadRequest) <-chan UploadEvent
}

// RecommendRequest is sent to the recommendation service.
type RecommendRequest struct {
	Image       []byte
	ContentType string
	ImageURL    string
	Language    Language
	Mood        Mood
}

// RecommendationService returns ranked song candidates for a photo.
// An empty result is valid and not an error.
type RecommendationService interface {
	Recommend(ctx context.Context, req RecommendRequest) ([]Track, error)
}

// CaptionRequest is sent to the caption service.
type CaptionRequest struct {
	ImageURL    string
	Image       []byte
	ContentType string
	Preferences Preferences
	Song        *Track
}

// CaptionService generates one caption for a photo. An empty string means
// no caption was produced and is not an error.
type CaptionService interface {
	Generate(ctx context.Context, req CaptionRequest) (string, error)
}

// DocumentStore persists posts and reads author profiles.
// store.PostStore implementations satisfy it.
type DocumentStore interface {
	CreatePost(ctx context.Context, post *store.Post, idempotencyKey string) error
	GetUserProfile(ctx context.Context, userID string) (*store.Profile, error)
}

// Picker lets the user choose a photo. It returns ErrPickCanceled when the
// user backs out and a PermissionDenied error when access is refused.
type Picker interface {
	Pick(ctx context.Context, source Source) (*SourceImage, error)
}

// Notifier is told about published posts. Failures are logged only.
type Notifier interface {
	PostPublished(ctx context.Context, post *store.Post) error
}

// User is the authenticated account driving a session.
type User struct {
	ID string
	// LoginID is the identifier the user signs in with, usually an email
	// address. It names the author when no profile exists.
	LoginID string
}
