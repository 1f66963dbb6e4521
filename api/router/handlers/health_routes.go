package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterHealthRoutes(r chi.Router) {
	r.Get("/health", a.healthCheckHandler)
}

func (a *API) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok":    true,
		"rules": a.Store.RuleCount(),
	}
	if a.Sync != nil {
		status["loaded"] = a.Sync.Loaded()
		status["saving"] = a.Sync.Saving()
	}
	if a.Channels != nil {
		status["channelsCached"] = a.Channels.HasCachedData()
	}
	writeJSON(w, http.StatusOK, status)
}
