// Package lambdaboot provides the Lambda cold-start bootstrap.
//
// The API Lambda needs AWS config, S3, DynamoDB, EventBridge, secrets from
// SSM and a startup log. This package keeps those init steps as small
// helpers so main's init() is a short composition of them.
package lambdaboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/config"
	"github.com/fpang/moodmatch/internal/events"
	"github.com/fpang/moodmatch/internal/logging"
	"github.com/fpang/moodmatch/internal/objstore"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// SSMAPI is the subset of the SSM client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// InitAWS loads the default AWS config and returns it along with the SSM
// client.
func InitAWS(ctx context.Context, region string) AWSClients {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates the S3 object store. Fatals if bucket is empty.
func InitS3(cfg aws.Config, bucket, publicBaseURL string) *objstore.S3Store {
	if bucket == "" {
		log.Fatal().Str("envVar", "MEDIA_BUCKET_NAME").Msg("Bucket is required")
	}
	return objstore.NewS3Store(s3.NewFromConfig(cfg), bucket, publicBaseURL)
}

// InitDynamo creates the DynamoDB post store. Fatals if table is empty.
func InitDynamo(cfg aws.Config, table string) *store.DynamoStore {
	if table == "" {
		log.Fatal().Str("envVar", "POSTS_TABLE_NAME").Msg("DynamoDB table is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// InitEvents returns an EventBridge publisher, or a no-op notifier when no
// bus is configured.
func InitEvents(cfg aws.Config, bus string) workflow.Notifier {
	if bus == "" {
		log.Warn().Msg("EVENT_BUS_NAME not set, PostPublished events disabled")
		return events.Nop{}
	}
	return events.NewPublisher(eventbridge.NewFromConfig(cfg), bus)
}

// LoadSecret fills *dst from the SSM parameter param unless it is already
// set.
func LoadSecret(ctx context.Context, client SSMAPI, dst *string, param string) error {
	if *dst != "" {
		return nil
	}
	if param == "" {
		return fmt.Errorf("no SSM parameter configured")
	}
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to read %s from SSM: %w", param, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return fmt.Errorf("SSM parameter %s is empty", param)
	}
	*dst = aws.ToString(result.Parameter.Value)
	log.Debug().Str("param", param).Dur("elapsed", time.Since(ssmStart)).Msg("Secret loaded from SSM")
	return nil
}

// LoadSecrets fills the secrets in cfg that the environment did not provide.
// The Gemini key and JWT secret are required; the recommendation key and
// origin secret are optional.
func LoadSecrets(ctx context.Context, client SSMAPI, cfg *config.Config) error {
	if err := LoadSecret(ctx, client, &cfg.GeminiAPIKey, cfg.SSM.GeminiAPIKey); err != nil {
		return fmt.Errorf("gemini api key: %w", err)
	}
	if err := LoadSecret(ctx, client, &cfg.JWTSecret, cfg.SSM.JWTSecret); err != nil {
		return fmt.Errorf("jwt secret: %w", err)
	}
	if err := LoadSecret(ctx, client, &cfg.RecommendAPIKey, cfg.SSM.RecommendAPIKey); err != nil {
		log.Warn().Err(err).Msg("Recommendation API key not loaded, calling without credentials")
	}
	if err := LoadSecret(ctx, client, &cfg.OriginVerifySecret, cfg.SSM.OriginVerify); err != nil {
		log.Warn().Err(err).Msg("Origin verify secret not loaded, origin check disabled")
	}
	return nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
