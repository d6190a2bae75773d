// Package events publishes MoodMatch domain events to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event.
	Source = "moodmatch.posts"
	// DetailTypePostPublished marks a newly published post.
	DetailTypePostPublished = "PostPublished"
)

// PutEventsAPI is the subset of the EventBridge client used here.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// PostPublished is the event detail.
type PostPublished struct {
	PostID     string    `json:"postId"`
	AuthorID   string    `json:"authorId"`
	HasSong    bool      `json:"hasSong"`
	HasCaption bool      `json:"hasCaption"`
	SongID     string    `json:"songId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Publisher implements workflow.Notifier.
type Publisher struct {
	client  PutEventsAPI
	busName string
}

// NewPublisher sends events to busName, or the default bus when empty.
func NewPublisher(client PutEventsAPI, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// PostPublished emits a PostPublished event for post.
func (p *Publisher) PostPublished(ctx context.Context, post *store.Post) error {
	event := PostPublished{
		PostID:     post.ID,
		AuthorID:   post.AuthorID,
		HasSong:    post.Song != nil,
		HasCaption: post.Caption != nil,
		CreatedAt:  post.CreatedAt,
	}
	if post.Song != nil {
		event.SongID = post.Song.ID
	}

	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal PostPublished: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypePostPublished),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("postId", post.ID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("postId", post.ID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("postId", post.ID).Msg("PostPublished emitted to EventBridge")
	return nil
}

// Nop discards events. It is used when no event bus is configured.
type Nop struct{}

// PostPublished implements workflow.Notifier.
func (Nop) PostPublished(context.Context, *store.Post) error { return nil }
