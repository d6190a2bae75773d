// Package main is an interactive terminal client for creating a post.
//
// It walks one user through picking a photo, choosing language and mood,
// picking a recommended song and a generated caption, and publishing.
// Photos come from a file dialog (library) or the newest file in the
// configured camera folder. Posts are stored in the same SQLite file the
// local server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fpang/moodmatch/internal/chat"
	"github.com/fpang/moodmatch/internal/cli"
	"github.com/fpang/moodmatch/internal/config"
	"github.com/fpang/moodmatch/internal/logging"
	"github.com/fpang/moodmatch/internal/objstore"
	"github.com/fpang/moodmatch/internal/picker"
	"github.com/fpang/moodmatch/internal/preview"
	"github.com/fpang/moodmatch/internal/recommend"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

// CLI flags
var (
	configFlag    string
	userFlag      string
	modelFlag     string
	cameraDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "moodmatch [image]",
	Short: "Create a post with a matching song and caption",
	Long: `moodmatch walks you through creating a post: pick a photo, get song
recommendations for its mood, get a caption, and publish.

When an image path is given it is used as the first photo instead of
opening the picker.

Examples:
  moodmatch
  moodmatch ~/Pictures/beach.jpg
  moodmatch --camera-dir ~/Pictures/Camera
  moodmatch --model gemini-3-flash-preview`,
	Args:    cobra.MaximumNArgs(1),
	Version: commitHash,
	Run:     runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Config file (default $MOODMATCH_CONFIG)")
	rootCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID posts are published as (default $USER)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (default "+chat.DefaultModelName+")")
	rootCmd.Flags().StringVar(&cameraDirFlag, "camera-dir", "", "Folder the camera source reads from")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if modelFlag != "" {
		cfg.GeminiModel = modelFlag
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = chat.GetModelName()
	}
	if cameraDirFlag != "" {
		cfg.Local.CameraDir = cameraDirFlag
	}
	if cfg.Local.CameraDir != "" {
		dir, err := cli.ResolveDirectory(cfg.Local.CameraDir)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Local.CameraDir).Msg("Camera folder is not usable")
		}
		cfg.Local.CameraDir = dir
	}
	if cfg.RecommendURL == "" {
		log.Fatal().Str("envVar", "RECOMMEND_URL").Msg("Recommendation endpoint is required")
	}

	user := workflow.User{ID: userFlag, LoginID: os.Getenv("USER")}
	if user.ID == "" {
		user.ID = user.LoginID
	}
	if user.ID == "" {
		log.Fatal().Msg("No user: pass --user or set USER")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genaiClient := cli.InitGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)

	if err := os.MkdirAll(cfg.MediaDir(), 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.MediaDir()).Msg("Failed to create media directory")
	}
	posts, err := store.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer posts.Close()

	wf := workflow.New(user, workflow.Deps{
		Objects:     objstore.NewFSStore(afero.NewOsFs(), cfg.MediaDir(), cfg.MediaPublicBaseURL),
		Recommender: recommend.NewClient(cfg.RecommendURL, cfg.RecommendAPIKey),
		Captioner:   chat.NewCaptioner(genaiClient.Models, cfg.GeminiModel),
		Documents:   posts,
		Picker:      picker.NewDialogPicker(cfg.Local.CameraDir),
		Player:      preview.NewHTTPPlayer(nil),
	})

	log.Debug().
		Str("user", user.ID).
		Str("model", cfg.GeminiModel).
		Str("database", cfg.SQLitePath()).
		Str("cameraDir", cfg.Local.CameraDir).
		Msg("Session ready")

	if len(args) == 1 {
		img, err := picker.Load(afero.NewOsFs(), args[0])
		if err != nil {
			log.Fatal().Err(err).Str("path", args[0]).Msg("Failed to read image")
		}
		start := time.Now()
		if _, err := wf.SetImage(ctx, img); err != nil {
			log.Error().Err(err).Msg("Upload failed")
		} else {
			log.Info().Dur("duration", time.Since(start)).Msg("Photo uploaded")
		}
	}

	wt := cli.NewWalkthrough(wf, cli.NewPrompter(os.Stdin, os.Stdout), os.Stdout)
	wt.Published = func(p *store.Post) {
		fmt.Printf("  %s\n", p.ImageURL)
	}
	if err := wt.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Walk-through failed")
	}
}
