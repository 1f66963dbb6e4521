package handlers

import (
	"net/http"

	"modelmap/models"

	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterExclusionRoutes(r chi.Router) {
	r.Route("/exclusions", func(r chi.Router) {
		r.Get("/", a.ListExclusionsHandler)
		r.Get("/{channelID}", a.GetExclusionHandler)
		r.Put("/{channelID}", a.SetExclusionHandler)
		r.Post("/{channelID}/toggle", a.ToggleExclusionHandler)
	})
}

// ListExclusionsHandler returns every channel exclusion record.
// @Summary List channel exclusions
// @Tags Exclusions
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.ChannelExclusion}
// @Router /exclusions [get]
func (a *API) ListExclusionsHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, a.Store.ChannelExclusions())
}

// GetExclusionHandler returns the excluded models of one channel; empty for unknown channels.
// @Summary Get a channel's excluded models
// @Tags Exclusions
// @Param channelID path int true "Channel id"
// @Success 200 {object} models.APIResponse{data=models.ChannelExclusion}
// @Router /exclusions/{channelID} [get]
func (a *API) GetExclusionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, models.ChannelExclusion{ChannelID: id, ExcludedModels: a.Store.GetChannelExclusion(id)})
}

// SetExclusionHandler replaces a channel's excluded models.
// @Summary Replace a channel's excluded models
// @Tags Exclusions
// @Accept json
// @Param channelID path int true "Channel id"
// @Param body body object true "{\"excludedModels\": [\"gpt-3.5-turbo\"]}"
// @Success 200 {object} models.APIResponse{data=models.ChannelExclusion}
// @Router /exclusions/{channelID} [put]
func (a *API) SetExclusionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		ExcludedModels []string `json:"excludedModels"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.Store.SetChannelExclusion(id, req.ExcludedModels)
	writeData(w, models.ChannelExclusion{ChannelID: id, ExcludedModels: a.Store.GetChannelExclusion(id)})
}

// ToggleExclusionHandler flips one model's exclusion on a channel.
// @Summary Toggle a model's exclusion
// @Tags Exclusions
// @Accept json
// @Param channelID path int true "Channel id"
// @Param body body object true "{\"model\": \"gpt-3.5-turbo\"}"
// @Success 200 {object} models.APIResponse
// @Router /exclusions/{channelID}/toggle [post]
func (a *API) ToggleExclusionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	a.Store.ToggleModelExclusion(id, req.Model)
	writeData(w, map[string]interface{}{
		"channelId": id,
		"model":     req.Model,
		"excluded":  a.Store.IsModelExcluded(id, req.Model),
	})
}
