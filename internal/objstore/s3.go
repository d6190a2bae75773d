package objstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded object tagging string used for cost
// allocation.
const projectTag = "Project=moodmatch"

// DefaultPresignExpiry is the lifetime of presigned image URLs. Seven days is
// the SigV4 maximum.
const DefaultPresignExpiry = 7 * 24 * time.Hour

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the subset of the S3 presign client used for image URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads photos to an S3 bucket.
//
// When PublicBaseURL is set (a CDN in front of the bucket), the returned URL
// is PublicBaseURL/key. Otherwise a presigned GET URL is returned.
type S3Store struct {
	Client        S3API
	Presign       PresignAPI
	Bucket        string
	PublicBaseURL string
	PresignExpiry time.Duration
}

var _ workflow.ObjectStore = (*S3Store)(nil)

// NewS3Store creates an S3Store from a client.
func NewS3Store(client *s3.Client, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		Client:        client,
		Presign:       s3.NewPresignClient(client),
		Bucket:        bucket,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		PresignExpiry: DefaultPresignExpiry,
	}
}

func (s *S3Store) Upload(ctx context.Context, req workflow.UploadRequest) <-chan workflow.UploadEvent {
	ev := newEvents(ctx)
	go func() {
		start := time.Now()
		body := newProgressReader(req.Data, ev.progress)

		_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        &s.Bucket,
			Key:           &req.Path,
			Body:          body,
			ContentType:   &req.ContentType,
			ContentLength: aws.Int64(int64(len(req.Data))),
			Tagging:       aws.String(projectTag),
		})
		if err != nil {
			ev.finish("", fmt.Errorf("S3 PutObject %s: %w", req.Path, err))
			return
		}
		ev.progress(100)

		url, err := s.objectURL(ctx, req.Path)
		if err != nil {
			ev.finish("", err)
			return
		}
		log.Debug().
			Str("bucket", s.Bucket).
			Str("key", req.Path).
			Int("size", len(req.Data)).
			Dur("duration", time.Since(start)).
			Msg("Object uploaded to S3")
		ev.finish(url, nil)
	}()
	return ev.ch
}

func (s *S3Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL + "/" + key, nil
	}
	expiry := s.PresignExpiry
	if expiry == 0 {
		expiry = DefaultPresignExpiry
	}
	result, err := s.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.Bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
