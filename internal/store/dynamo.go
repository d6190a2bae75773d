package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	postPKPrefix  = "POST#"
	userPKPrefix  = "USER#"
	idempPKPrefix = "IDEMP#"
	skMeta        = "META"
	skProfile     = "PROFILE"
	skIdemp       = "KEY"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore implements PostStore on a single DynamoDB table keyed by
// PK/SK strings.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ PostStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

// idempotencyRecord remembers which post a publish key produced.
type idempotencyRecord struct {
	PostID    string    `dynamodbav:"postId"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// marshalItem marshals a domain object and adds the PK/SK attributes.
func marshalItem(pk, sk string, data any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	for k, v := range key(pk, sk) {
		item[k] = v
	}
	return item, nil
}

// getItem reads a single item and unmarshals it into out.
// Returns false if the item does not exist.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) CreatePost(ctx context.Context, post *Post, idempotencyKey string) error {
	if err := prepare(post); err != nil {
		return err
	}
	post.ID = NewPostID()
	post.CreatedAt = s.now().UTC()

	postItem, err := marshalItem(postPKPrefix+post.ID, skMeta, post)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	if idempotencyKey == "" {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           &s.tableName,
			Item:                postItem,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		if err != nil {
			return fmt.Errorf("PutItem post %s: %w", post.ID, err)
		}
		log.Debug().Str("postId", post.ID).Msg("Post persisted to DynamoDB")
		return nil
	}

	idempItem, err := marshalItem(idempPKPrefix+idempotencyKey, skIdemp, idempotencyRecord{
		PostID:    post.ID,
		CreatedAt: post.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	idempItem["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(post.CreatedAt.Add(IdempotencyTTL).Unix(), 10),
	}

	// The idempotency record goes first so its cancellation reason is at
	// index 0.
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                idempItem,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                postItem,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err == nil {
		log.Debug().Str("postId", post.ID).Str("idempotencyKey", idempotencyKey).Msg("Post persisted to DynamoDB")
		return nil
	}
	if !idempotencyConflict(err) {
		return fmt.Errorf("TransactWriteItems post %s: %w", post.ID, err)
	}

	var rec idempotencyRecord
	found, getErr := s.getItem(ctx, idempPKPrefix+idempotencyKey, skIdemp, &rec)
	if getErr != nil {
		return fmt.Errorf("replay idempotency key: %w", getErr)
	}
	if !found {
		return fmt.Errorf("replay idempotency key: record vanished: %w", err)
	}
	post.ID = rec.PostID
	post.CreatedAt = rec.CreatedAt
	log.Info().Str("postId", post.ID).Str("idempotencyKey", idempotencyKey).Msg("Publish replayed, returning existing post")
	return nil
}

// idempotencyConflict reports whether a transaction was cancelled because the
// idempotency record already exists.
func idempotencyConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) == 0 {
		return false
	}
	return aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

func (s *DynamoStore) GetPost(ctx context.Context, id string) (*Post, error) {
	var post Post
	found, err := s.getItem(ctx, postPKPrefix+id, skMeta, &post)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	post.ID = id
	return &post, nil
}

func (s *DynamoStore) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	found, err := s.getItem(ctx, userPKPrefix+userID, skProfile, &profile)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}
	profile.UserID = userID
	return &profile, nil
}

func (s *DynamoStore) PutUserProfile(ctx context.Context, profile *Profile) error {
	item, err := marshalItem(userPKPrefix+profile.UserID, skProfile, profile)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", profile.UserID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem profile %s: %w", profile.UserID, err)
	}
	log.Debug().Str("userId", profile.UserID).Msg("Profile persisted to DynamoDB")
	return nil
}
