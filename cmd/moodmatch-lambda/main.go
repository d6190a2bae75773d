// Package main provides the Lambda entry point for the post-creation API.
//
// It serves internal/api behind API Gateway (HTTP API, payload v2) with
// S3 for photos, DynamoDB for posts and profiles, and EventBridge for
// PostPublished events.
//
// Secrets are read from SSM Parameter Store at cold start unless the
// environment already provides them:
//   - GEMINI_API_KEY       (SSM_API_KEY_PARAM)
//   - JWT_SECRET           (SSM_JWT_SECRET_PARAM)
//   - RECOMMEND_API_KEY    (SSM_RECOMMEND_KEY_PARAM, optional)
//   - ORIGIN_VERIFY_SECRET (SSM_ORIGIN_VERIFY_PARAM, optional)
//
// Sessions live in memory, so the function should run with reserved
// concurrency and clients should expect a 404 for a session that was
// evicted or lived on another instance.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/api"
	"github.com/fpang/moodmatch/internal/auth"
	"github.com/fpang/moodmatch/internal/chat"
	"github.com/fpang/moodmatch/internal/config"
	"github.com/fpang/moodmatch/internal/lambdaboot"
	"github.com/fpang/moodmatch/internal/logging"
	"github.com/fpang/moodmatch/internal/preview"
	"github.com/fpang/moodmatch/internal/recommend"
	"github.com/fpang/moodmatch/internal/workflow"
)

var server *api.Server

func init() {
	initStart := time.Now()
	logging.Init()
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	aws := lambdaboot.InitAWS(ctx, cfg.Region)
	if err := lambdaboot.LoadSecrets(ctx, aws.SSM, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}
	if cfg.RecommendURL == "" {
		log.Fatal().Str("envVar", "RECOMMEND_URL").Msg("Recommendation endpoint is required")
	}

	objects := lambdaboot.InitS3(aws.Config, cfg.MediaBucket, cfg.MediaPublicBaseURL)
	posts := lambdaboot.InitDynamo(aws.Config, cfg.PostsTable)
	notifier := lambdaboot.InitEvents(aws.Config, cfg.EventBus)

	genaiClient, err := chat.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	model := cfg.GeminiModel
	if model == "" {
		model = chat.GetModelName()
	}
	captioner := chat.NewCaptioner(genaiClient.Models, model)
	recommender := recommend.NewClient(cfg.RecommendURL, cfg.RecommendAPIKey)
	player := preview.NewHTTPPlayer(nil)

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}

	server = api.New(api.Options{
		Verifier: verifier,
		Store:    posts,
		NewWorkflow: func(user workflow.User, p workflow.Picker) *workflow.Workflow {
			return workflow.New(user, workflow.Deps{
				Objects:     objects,
				Recommender: recommender,
				Captioner:   captioner,
				Documents:   posts,
				Picker:      p,
				Player:      player,
				Notifier:    notifier,
			})
		},
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		OriginVerifySecret: cfg.OriginVerifySecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		Version:            commitHash,
	})

	lambdaboot.StartupLog("moodmatch-lambda", initStart).
		Version(commitHash).
		Config("buildTime", buildTime).
		Bucket("media", cfg.MediaBucket).
		Table("posts", cfg.PostsTable).
		EventBus("events", cfg.EventBus).
		Endpoint("recommend", cfg.RecommendURL).
		SSMParam("geminiApiKey", cfg.SSM.GeminiAPIKey).
		SSMParam("jwtSecret", cfg.SSM.JWTSecret).
		Config("geminiModel", model).
		Feature("originVerify", cfg.OriginVerifySecret != "").
		Feature("events", cfg.EventBus != "").
		Log()
}

func main() {
	adapter := httpadapter.NewV2(server.Handler())
	lambda.Start(adapter.ProxyWithContext)
}
