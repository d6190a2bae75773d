// Package api exposes post-creation sessions over HTTP.
//
// Each authenticated user may hold a few sessions. A session wraps one
// workflow.Workflow; every endpoint maps to one workflow operation and
// answers with the resulting state snapshot.
//
// Endpoints:
//
//	GET    /api/health
//	POST   /api/sessions                          start a session
//	GET    /api/sessions/{id}                     current state
//	DELETE /api/sessions/{id}                     discard and close
//	POST   /api/sessions/{id}/discard             discard, keep the session
//	POST   /api/sessions/{id}/image?source=       photo bytes in the body
//	POST   /api/sessions/{id}/image/denied        device permission refused
//	POST   /api/sessions/{id}/upload              retry the upload
//	PUT    /api/sessions/{id}/preferences         {"language","mood"}
//	POST   /api/sessions/{id}/songs/fetch
//	POST   /api/sessions/{id}/songs/next
//	POST   /api/sessions/{id}/songs/preview       {"trackId"}
//	POST   /api/sessions/{id}/songs/confirm
//	POST   /api/sessions/{id}/songs/revert
//	POST   /api/sessions/{id}/songs/play          {"trackId"}
//	POST   /api/sessions/{id}/songs/stop
//	GET    /api/sessions/{id}/songs/preview-audio
//	POST   /api/sessions/{id}/caption
//	POST   /api/sessions/{id}/caption/confirm
//	POST   /api/sessions/{id}/caption/revert
//	POST   /api/sessions/{id}/back                return to the confirmed stage
//	POST   /api/sessions/{id}/publish
//	GET    /api/posts/{id}
//	GET    /api/profile
//	PUT    /api/profile
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

// TokenVerifier authenticates bearer tokens. *auth.Verifier implements it.
type TokenVerifier interface {
	Verify(token string) (workflow.User, error)
}

// Options configure a Server.
type Options struct {
	Verifier TokenVerifier
	Store    store.PostStore
	// NewWorkflow builds the workflow behind each session.
	NewWorkflow WorkflowFactory

	SessionIdleTimeout time.Duration
	OriginVerifySecret string
	AllowedOrigins     []string
	Version            string
}

// Server is the HTTP API.
type Server struct {
	sessions *Registry
	verifier TokenVerifier
	store    store.PostStore

	originVerifySecret string
	allowedOrigins     []string
	version            string
}

// New creates a Server.
func New(opts Options) *Server {
	idle := opts.SessionIdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Server{
		sessions:           NewRegistry(idle, opts.NewWorkflow),
		verifier:           opts.Verifier,
		store:              opts.Store,
		originVerifySecret: opts.OriginVerifySecret,
		allowedOrigins:     opts.AllowedOrigins,
		version:            opts.Version,
	}
}

// Sessions returns the session registry.
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// Run sweeps idle sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, time.Minute)
}

// Close discards all sessions.
func (s *Server) Close() {
	s.sessions.Close()
}

// Handler returns the routed API wrapped in its middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/sessions", s.withAuth(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.session(s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withAuth(s.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/{id}/discard", s.session(s.handleDiscard))
	mux.HandleFunc("POST /api/sessions/{id}/image", s.session(s.handleSelectImage))
	mux.HandleFunc("POST /api/sessions/{id}/image/denied", s.session(s.handleImageDenied))
	mux.HandleFunc("POST /api/sessions/{id}/upload", s.session(s.handleUpload))
	mux.HandleFunc("PUT /api/sessions/{id}/preferences", s.session(s.handlePreferences))
	mux.HandleFunc("POST /api/sessions/{id}/songs/fetch", s.session(s.handleFetchSongs))
	mux.HandleFunc("POST /api/sessions/{id}/songs/next", s.session(s.handleNextPage))
	mux.HandleFunc("POST /api/sessions/{id}/songs/preview", s.session(s.handlePreviewSong))
	mux.HandleFunc("POST /api/sessions/{id}/songs/confirm", s.session(s.handleConfirmSong))
	mux.HandleFunc("POST /api/sessions/{id}/songs/revert", s.session(s.handleRevertSong))
	mux.HandleFunc("POST /api/sessions/{id}/songs/play", s.session(s.handlePlay))
	mux.HandleFunc("POST /api/sessions/{id}/songs/stop", s.session(s.handleStop))
	mux.HandleFunc("GET /api/sessions/{id}/songs/preview-audio", s.session(s.handlePreviewAudio))
	mux.HandleFunc("POST /api/sessions/{id}/caption", s.session(s.handleRequestCaption))
	mux.HandleFunc("POST /api/sessions/{id}/caption/confirm", s.session(s.handleConfirmCaption))
	mux.HandleFunc("POST /api/sessions/{id}/caption/revert", s.session(s.handleRevertCaption))
	mux.HandleFunc("POST /api/sessions/{id}/back", s.session(s.handleBack))
	mux.HandleFunc("POST /api/sessions/{id}/publish", s.session(s.handlePublish))

	mux.HandleFunc("GET /api/posts/{id}", s.withAuth(s.handleGetPost))
	mux.HandleFunc("GET /api/profile", s.withAuth(s.handleGetProfile))
	mux.HandleFunc("PUT /api/profile", s.withAuth(s.handlePutProfile))

	return withLogging(withMetrics(s.withCORS(s.withOriginVerify(gzhttp.GzipHandler(mux)))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// session resolves the {id} path value to a session owned by the caller.
func (s *Server) session(fn func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFrom(r.Context())
		sess, err := s.sessions.Get(r.PathValue("id"), user.ID)
		if err != nil {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		fn(w, r, sess)
	})
}
