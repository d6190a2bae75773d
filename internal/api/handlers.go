package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	sess := s.sessions.Create(user)
	respondJSON(w, http.StatusCreated, stateResponse{SessionID: sess.ID, State: sess.Workflow.State()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	respondJSON(w, http.StatusOK, stateResponse{SessionID: sess.ID, State: sess.Workflow.State()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := s.sessions.Delete(r.PathValue("id"), user.ID); err != nil {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request, sess *Session) {
	respondOp(w, sess.Workflow.Discard(), nil)
}

// parseSource reads ?source=, defaulting to the photo library.
func parseSource(w http.ResponseWriter, r *http.Request) (workflow.Source, bool) {
	switch src := workflow.Source(r.URL.Query().Get("source")); src {
	case "":
		return workflow.SourceLibrary, true
	case workflow.SourceCamera, workflow.SourceLibrary:
		return src, true
	default:
		httpError(w, http.StatusBadRequest, "source must be camera or library")
		return "", false
	}
}

// handleSelectImage takes the photo bytes as the request body. The
// Content-Type header is a hint; the bytes are sniffed as well.
func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request, sess *Session) {
	source, ok := parseSource(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, imageutil.MaxImageBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "photo is larger than 20 MB")
			return
		}
		httpError(w, http.StatusBadRequest, "failed to read photo")
		return
	}
	if len(data) == 0 {
		httpError(w, http.StatusBadRequest, "photo is empty")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	sess.Picker.Put(&workflow.SourceImage{
		URI:         "upload://" + sess.ID,
		ContentType: strings.TrimSpace(contentType),
		Data:        data,
	})

	st, err := sess.Workflow.SelectImage(r.Context(), source)
	respondOp(w, st, err)
}

// handleImageDenied records that the client's OS refused camera or library
// access. The workflow answers with a blocking permission error.
func (s *Server) handleImageDenied(w http.ResponseWriter, r *http.Request, sess *Session) {
	source, ok := parseSource(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		req.Message = string(source) + " access was refused. Allow it in your device settings."
	}
	sess.Picker.Deny(req.Message)

	st, err := sess.Workflow.SelectImage(r.Context(), source)
	respondOp(w, st, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.UploadImage(r.Context())
	respondOp(w, st, err)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request, sess *Session) {
	var req struct {
		Language string `json:"language"`
		Mood     string `json:"mood"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	lang, err := workflow.ParseLanguage(req.Language)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	mood, err := workflow.ParseMood(req.Mood)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := sess.Workflow.ChoosePreferences(lang, mood)
	respondOp(w, st, err)
}

func (s *Server) handleFetchSongs(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.FetchRecommendations(r.Context())
	respondOp(w, st, err)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.AdvanceSongPage()
	respondOp(w, st, err)
}

// trackFromRequest resolves {"trackId"} against the session's candidate
// list so preview URLs always come from the recommendation service.
func trackFromRequest(w http.ResponseWriter, r *http.Request, sess *Session) (workflow.Track, bool) {
	var req struct {
		TrackID string `json:"trackId"`
	}
	if !decodeJSON(w, r, &req) {
		return workflow.Track{}, false
	}
	if req.TrackID == "" {
		httpError(w, http.StatusBadRequest, "trackId is required")
		return workflow.Track{}, false
	}
	st := sess.Workflow.State()
	for _, t := range st.CandidateTracks {
		if t.Key() == req.TrackID {
			return t, true
		}
	}
	respondJSON(w, http.StatusConflict, opErrorResponse{
		Error: "that song isn't in the current list",
		Kind:  workflow.KindValidation,
		State: st,
	})
	return workflow.Track{}, false
}

func (s *Server) handlePreviewSong(w http.ResponseWriter, r *http.Request, sess *Session) {
	track, ok := trackFromRequest(w, r, sess)
	if !ok {
		return
	}
	st, err := sess.Workflow.PreviewSong(track)
	respondOp(w, st, err)
}

func (s *Server) handleConfirmSong(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.ConfirmSong()
	respondOp(w, st, err)
}

func (s *Server) handleRevertSong(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.RevertSongSelection()
	respondOp(w, st, err)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request, sess *Session) {
	track, ok := trackFromRequest(w, r, sess)
	if !ok {
		return
	}
	st, err := sess.Workflow.PlayPreview(r.Context(), track)
	respondOp(w, st, err)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, sess *Session) {
	respondOp(w, sess.Workflow.StopPreview(), nil)
}

// handlePreviewAudio streams the open preview. The stream ends when the
// preview is stopped or replaced.
func (s *Server) handlePreviewAudio(w http.ResponseWriter, r *http.Request, sess *Session) {
	h, ok := sess.Workflow.CurrentPreview()
	if !ok {
		httpError(w, http.StatusNotFound, "no preview is playing")
		return
	}
	ct := h.ContentType()
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, h)
	if err != nil && r.Context().Err() == nil {
		log.Debug().Err(err).Int64("bytes", n).Str("sessionId", sess.ID).Msg("Preview stream ended early")
	}
}

func (s *Server) handleRequestCaption(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.RequestCaption(r.Context())
	respondOp(w, st, err)
}

func (s *Server) handleConfirmCaption(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.ConfirmCaption()
	respondOp(w, st, err)
}

func (s *Server) handleRevertCaption(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.RevertCaptionSelection(r.Context())
	respondOp(w, st, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, err := sess.Workflow.Back()
	respondOp(w, st, err)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, sess *Session) {
	post, st, err := sess.Workflow.Publish(r.Context())
	if post == nil {
		respondOp(w, st, err)
		return
	}
	// A post written by a superseded publish is still returned.
	respondJSON(w, http.StatusCreated, struct {
		Post  *store.Post    `json:"post"`
		State workflow.State `json:"state"`
	}{post, st})
}
