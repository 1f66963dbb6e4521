package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterSyncRoutes(r chi.Router) {
	r.Get("/sync/status", a.SyncStatusHandler)
	r.Post("/sync/flush", a.FlushHandler)
	r.Post("/sync/reload", a.ReloadHandler)
}

// SyncStatusHandler reports whether state was loaded and whether a save is running.
// @Summary Persistence status
// @Tags Sync
// @Success 200 {object} models.APIResponse
// @Router /sync/status [get]
func (a *API) SyncStatusHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeData(w, map[string]bool{"enabled": false})
		return
	}
	writeData(w, map[string]bool{
		"enabled": true,
		"loaded":  a.Sync.Loaded(),
		"saving":  a.Sync.Saving(),
	})
}

// FlushHandler saves the store immediately instead of waiting for the debounce.
// @Summary Save now
// @Tags Sync
// @Success 200 {object} models.APIResponse
// @Failure 409 {object} models.ErrorResponse "State not loaded yet"
// @Router /sync/flush [post]
func (a *API) FlushHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not enabled")
		return
	}
	if !a.Sync.Loaded() {
		writeError(w, http.StatusConflict, "state has not been loaded; refusing to overwrite storage")
		return
	}
	if err := a.Sync.Flush(r.Context()); err != nil {
		writeServiceError(w, "FlushHandler", err)
		return
	}
	writeMessage(w, http.StatusOK, "saved")
}

// ReloadHandler re-reads the store from storage, discarding unsaved edits.
// @Summary Reload from storage
// @Tags Sync
// @Success 200 {object} models.APIResponse
// @Router /sync/reload [post]
func (a *API) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not enabled")
		return
	}
	if err := a.Sync.Load(r.Context()); err != nil {
		writeServiceError(w, "ReloadHandler", err)
		return
	}
	writeMessage(w, http.StatusOK, "reloaded")
}
