// Package store persists published posts and the author profiles they
// snapshot.
//
// Three implementations share one contract: DynamoStore (single-table
// DynamoDB, used by the API on Lambda), SQLiteStore (local file, used by the
// CLI) and MemoryStore (tests and ephemeral local runs).
//
// Every CreatePost call may carry an idempotency key. A second call with the
// same key does not write a new post; it fills in the ID and CreatedAt of the
// post written by the first call. This makes publish safe to retry after an
// ambiguous failure where the write landed but the acknowledgment was lost.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// IdempotencyTTL is how long an idempotency record is remembered.
const IdempotencyTTL = 24 * time.Hour

// ErrInvalidPost is returned when a post is missing required fields.
var ErrInvalidPost = errors.New("invalid post")

// PostStore is the document store consumed by the publish step.
// Methods are safe for concurrent use.
//
// Get methods return (nil, nil) when the record does not exist.
type PostStore interface {
	// CreatePost writes a new post and sets post.ID and post.CreatedAt.
	// A non-empty idempotencyKey that was already used returns the
	// original post's identity instead of writing again.
	CreatePost(ctx context.Context, post *Post, idempotencyKey string) error

	// GetPost retrieves a post by ID.
	GetPost(ctx context.Context, id string) (*Post, error)

	// GetUserProfile retrieves the profile of a user.
	GetUserProfile(ctx context.Context, userID string) (*Profile, error)

	// PutUserProfile creates or replaces a profile.
	PutUserProfile(ctx context.Context, profile *Profile) error
}

// Song is the structured track reference attached to a post.
type Song struct {
	ID          string   `json:"id" dynamodbav:"id"`
	Name        string   `json:"name" dynamodbav:"name"`
	ArtistNames []string `json:"artistNames" dynamodbav:"artistNames"`
	AlbumArtURL string   `json:"albumArtUrl,omitempty" dynamodbav:"albumArtUrl,omitempty"`
	PreviewURL  string   `json:"previewUrl,omitempty" dynamodbav:"previewUrl,omitempty"`
	ExternalURL string   `json:"externalUrl,omitempty" dynamodbav:"externalUrl,omitempty"`
}

// Post is a published post (DynamoDB PK = POST#{id}, SK = META).
// Author fields are a snapshot taken at publish time.
type Post struct {
	ID                string    `json:"id" dynamodbav:"-"`
	AuthorID          string    `json:"authorId" dynamodbav:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName" dynamodbav:"authorDisplayName"`
	AuthorAvatarURL   string    `json:"authorAvatarUrl" dynamodbav:"authorAvatarUrl"`
	ImageURL          string    `json:"imageUrl" dynamodbav:"imageUrl"`
	Caption           *string   `json:"caption" dynamodbav:"caption,omitempty"`
	Song              *Song     `json:"song" dynamodbav:"song,omitempty"`
	CreatedAt         time.Time `json:"createdAt" dynamodbav:"createdAt"`
	LikesCount        int       `json:"likesCount" dynamodbav:"likesCount"`
	LikedByUserIDs    []string  `json:"likedByUserIds" dynamodbav:"likedByUserIds"`
	CommentsCount     int       `json:"commentsCount" dynamodbav:"commentsCount"`
}

// Profile is a user profile (DynamoDB PK = USER#{userId}, SK = PROFILE).
type Profile struct {
	UserID      string `json:"userId" dynamodbav:"-"`
	DisplayName string `json:"displayName,omitempty" dynamodbav:"displayName,omitempty"`
	Username    string `json:"username,omitempty" dynamodbav:"username,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty" dynamodbav:"avatarUrl,omitempty"`
}

// NewPostID returns a time-sortable post identifier.
func NewPostID() string {
	return ulid.Make().String()
}

// prepare validates a post and zeroes the counters owned by the like and
// comment features.
func prepare(post *Post) error {
	if post == nil || post.ImageURL == "" || post.AuthorID == "" {
		return ErrInvalidPost
	}
	post.LikesCount = 0
	post.CommentsCount = 0
	post.LikedByUserIDs = []string{}
	return nil
}
