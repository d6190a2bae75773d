package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/workflow"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type stateResponse struct {
	SessionID string         `json:"sessionId,omitempty"`
	State     workflow.State `json:"state"`
}

type opErrorResponse struct {
	Error string         `json:"error"`
	Kind  workflow.Kind  `json:"kind,omitempty"`
	State workflow.State `json:"state"`
}

// statusForKind maps workflow error kinds to HTTP status codes.
func statusForKind(kind workflow.Kind) int {
	switch kind {
	case workflow.KindValidation, workflow.KindSuperseded:
		return http.StatusConflict
	case workflow.KindPermissionDenied:
		return http.StatusForbidden
	case workflow.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondOp writes the outcome of a workflow operation. Errors carry the
// user-facing message and the state after the operation.
func respondOp(w http.ResponseWriter, st workflow.State, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, stateResponse{State: st})
		return
	}

	if errors.Is(err, workflow.ErrPickCanceled) {
		respondJSON(w, http.StatusBadRequest, opErrorResponse{Error: "no photo was selected", State: st})
		return
	}

	var we *workflow.Error
	if !errors.As(err, &we) {
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
		return
	}
	msg := we.Message
	if msg == "" {
		msg = string(we.Kind)
	}
	if we.Kind == workflow.KindTransport {
		log.Warn().Err(err).Str("op", we.Op).Msg("Workflow operation failed")
	}
	respondJSON(w, statusForKind(we.Kind), opErrorResponse{Error: msg, Kind: we.Kind, State: st})
}
