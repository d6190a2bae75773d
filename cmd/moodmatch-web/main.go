// Package main runs the post-creation API on a workstation.
//
// Posts and profiles go to a SQLite file and photos to a folder under the
// data directory, which the server also exposes at /media/. The Gemini
// key comes from GEMINI_API_KEY or the GPG credential file; JWT_SECRET
// signs the bearer tokens that `moodmatch-web token` prints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fpang/moodmatch/internal/api"
	"github.com/fpang/moodmatch/internal/auth"
	"github.com/fpang/moodmatch/internal/chat"
	"github.com/fpang/moodmatch/internal/cli"
	"github.com/fpang/moodmatch/internal/config"
	"github.com/fpang/moodmatch/internal/logging"
	"github.com/fpang/moodmatch/internal/objstore"
	"github.com/fpang/moodmatch/internal/preview"
	"github.com/fpang/moodmatch/internal/recommend"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

// CLI flags
var (
	configFlag string
	addrFlag   string
	modelFlag  string

	tokenUserFlag  string
	tokenEmailFlag string
	tokenTTLFlag   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "moodmatch-web",
	Short: "Local server for the post-creation API",
	Long: `moodmatch-web serves the post-creation API on this machine, storing
posts in SQLite and photos under the data directory.

Examples:
  moodmatch-web
  moodmatch-web --addr 127.0.0.1:9090
  moodmatch-web --config ~/.moodmatch/config.yaml
  moodmatch-web token --user u1 --email jane@example.com`,
	Run: runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the local server",
	Run:   runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default $MOODMATCH_CONFIG)")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default from config)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (default "+chat.DefaultModelName+")")

	tokenCmd.Flags().StringVar(&tokenUserFlag, "user", "", "User ID (token subject)")
	tokenCmd.Flags().StringVar(&tokenEmailFlag, "email", "", "Login ID shown as the fallback author name")
	tokenCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Str("envVar", "JWT_SECRET").Msg("JWT secret is required")
	}
	return cfg
}

func runToken(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig()

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}
	token, err := verifier.Issue(workflow.User{ID: tokenUserFlag, LoginID: tokenEmailFlag}, tokenTTLFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}

func runServe(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()
	cfg := loadConfig()
	if addrFlag != "" {
		cfg.Local.ListenAddr = addrFlag
	}
	if modelFlag != "" {
		cfg.GeminiModel = modelFlag
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = chat.GetModelName()
	}
	if cfg.RecommendURL == "" {
		log.Fatal().Str("envVar", "RECOMMEND_URL").Msg("Recommendation endpoint is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genaiClient := cli.InitGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	captioner := chat.NewCaptioner(genaiClient.Models, cfg.GeminiModel)
	recommender := recommend.NewClient(cfg.RecommendURL, cfg.RecommendAPIKey)
	player := preview.NewHTTPPlayer(nil)

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}

	if err := os.MkdirAll(cfg.MediaDir(), 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.MediaDir()).Msg("Failed to create media directory")
	}
	posts, err := store.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer posts.Close()

	baseURL := cfg.MediaPublicBaseURL
	if baseURL == "" {
		baseURL = "http://" + cfg.Local.ListenAddr + "/media"
	}
	fsys := afero.NewOsFs()
	objects := objstore.NewFSStore(fsys, cfg.MediaDir(), baseURL)

	server := api.New(api.Options{
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
			})
		},
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		OriginVerifySecret: cfg.OriginVerifySecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		Version:            commitHash,
	})
	defer server.Close()
	go server.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/", server.Handler())
	media := http.FileServer(afero.NewHttpFs(fsys).Dir(cfg.MediaDir()))
	mux.Handle("GET /media/", http.StripPrefix("/media", withNoSniff(media)))

	srv := &http.Server{
		Addr:         cfg.Local.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.NewStartupLogger("moodmatch-web").
		Version(commitHash).
		Config("buildTime", buildTime).
		Config("listenAddr", cfg.Local.ListenAddr).
		Config("geminiModel", cfg.GeminiModel).
		Table("posts", cfg.SQLitePath()).
		Bucket("media", cfg.MediaDir()).
		Endpoint("recommend", cfg.RecommendURL).
		Feature("originVerify", cfg.OriginVerifySecret != "").
		InitDuration(time.Since(initStart)).
		Log()
	fmt.Printf("\n  MoodMatch API: http://%s/api/health\n\n", cfg.Local.ListenAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func withNoSniff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
