package api

import (
	"net/http"
	"strings"

	"github.com/fpang/moodmatch/internal/store"
)

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadGateway, "failed to load post", err.Error())
		return
	}
	if post == nil {
		httpError(w, http.StatusNotFound, "post not found")
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	profile, err := s.store.GetUserProfile(r.Context(), user.ID)
	if err != nil {
		httpError(w, http.StatusBadGateway, "failed to load profile", err.Error())
		return
	}
	if profile == nil {
		profile = &store.Profile{UserID: user.ID}
	}
	respondJSON(w, http.StatusOK, profile)
}

// handlePutProfile replaces the caller's profile. Posts already published
// keep the author snapshot taken at publish time.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	var req store.Profile
	if !decodeJSON(w, r, &req) {
		return
	}
	profile := &store.Profile{
		UserID:      user.ID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Username:    strings.TrimSpace(req.Username),
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
	}
	if len(profile.DisplayName) > 100 || len(profile.Username) > 50 {
		httpError(w, http.StatusBadRequest, "display name or username too long")
		return
	}
	if err := s.store.PutUserProfile(r.Context(), profile); err != nil {
		httpError(w, http.StatusBadGateway, "failed to save profile", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
