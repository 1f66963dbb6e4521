package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"modelmap/core"
	"modelmap/logger"
	"modelmap/models"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; export documents are the largest payload.
const maxBodyBytes = 8 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("writeJSON: error encoding response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIResponse{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Success: false, Message: message})
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	var validation *core.ValidationError
	var upstream *core.UpstreamError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUpstreamNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateTargets):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err under the handler name and replies with the mapped status.
func writeServiceError(w http.ResponseWriter, handler string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s: %v", handler, err)
	} else {
		logger.Info("%s: rejected: %v", handler, err)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func channelIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "channelID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid channel id %q", raw)
	}
	return id, nil
}

// wildcardParam returns the unescaped remainder of the path matched by "*". Model names may
// contain slashes, so they are addressed this way.
func wildcardParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid path parameter %q: %w", raw, err)
	}
	return value, nil
}
