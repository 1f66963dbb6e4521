package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"modelmap/core"
	"modelmap/logger"

	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterChannelRoutes(r chi.Router) {
	r.Route("/channels", func(r chi.Router) {
		r.Use(a.requireChannels)
		r.Get("/", a.ListChannelsHandler)
		r.Post("/refresh", a.RefreshChannelsHandler)
		r.Post("/models/refresh", a.RefreshAllModelsHandler)
		r.Post("/import-rules", a.ImportFromChannelsHandler)
		r.Get("/{channelID}/models", a.ChannelModelsHandler)
		r.Post("/{channelID}/models/refresh", a.RefreshChannelModelsHandler)
		r.Get("/{channelID}/preview", a.PreviewChannelHandler)
		r.Post("/{channelID}/apply", a.ApplyChannelHandler)
	})
}

func (a *API) requireChannels(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Channels == nil {
			writeError(w, http.StatusServiceUnavailable, "channel service is not available")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListChannelsHandler returns cached channels, newest first. refresh=true reloads them from the
// gateway first, as does an empty cache.
// @Summary List channels
// @Tags Channels
// @Param refresh query bool false "Reload from the gateway"
// @Success 200 {object} models.APIResponse{data=[]models.Channel}
// @Failure 400 {object} models.ErrorResponse "Upstream not configured"
// @Failure 502 {object} models.ErrorResponse
// @Router /channels [get]
func (a *API) ListChannelsHandler(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if refresh || !a.Channels.HasCachedData() {
		if _, err := a.Channels.LoadChannels(r.Context()); err != nil {
			writeServiceError(w, "ListChannelsHandler", err)
			return
		}
	}
	writeData(w, a.Channels.Channels())
}

// RefreshChannelsHandler reloads the channel list from the gateway.
// @Summary Reload channels
// @Tags Channels
// @Success 200 {object} models.APIResponse{data=[]models.Channel}
// @Router /channels/refresh [post]
func (a *API) RefreshChannelsHandler(w http.ResponseWriter, r *http.Request) {
	channels, err := a.Channels.LoadChannels(r.Context())
	if err != nil {
		writeServiceError(w, "RefreshChannelsHandler", err)
		return
	}
	writeData(w, channels)
}

// RefreshAllModelsHandler fetches the upstream model list of every cached channel.
// @Summary Reload upstream models of all channels
// @Tags Channels
// @Success 200 {object} models.APIResponse{data=core.ModelFetchSummary}
// @Router /channels/models/refresh [post]
func (a *API) RefreshAllModelsHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, a.Channels.LoadAllUpstreamModels(r.Context()))
}

// RefreshChannelModelsHandler fetches one channel's upstream model list.
// @Summary Reload a channel's upstream models
// @Tags Channels
// @Param channelID path int true "Channel id"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /channels/{channelID}/models/refresh [post]
func (a *API) RefreshChannelModelsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	modelsList, fetched, err := a.Channels.LoadUpstreamModels(r.Context(), id)
	if err != nil {
		writeServiceError(w, "RefreshChannelModelsHandler", err)
		return
	}
	writeData(w, map[string]interface{}{
		"channelId": id,
		"models":    modelsList,
		"fallback":  !fetched,
	})
}

// ChannelModelsHandler returns a channel's upstream models, falling back to its configured ones.
// @Summary Get a channel's models
// @Tags Channels
// @Param channelID path int true "Channel id"
// @Success 200 {object} models.APIResponse
// @Router /channels/{channelID}/models [get]
func (a *API) ChannelModelsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.Channels.Channel(id); err != nil {
		writeServiceError(w, "ChannelModelsHandler", err)
		return
	}
	writeData(w, a.Channels.ChannelModels(id))
}

// PreviewChannelHandler shows the config Apply would push and any duplicate targets.
// @Summary Preview a channel's generated config
// @Tags Channels
// @Param channelID path int true "Channel id"
// @Success 200 {object} models.APIResponse{data=models.ChannelPreview}
// @Failure 404 {object} models.ErrorResponse
// @Router /channels/{channelID}/preview [get]
func (a *API) PreviewChannelHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	preview, err := a.Channels.Preview(id)
	if err != nil {
		writeServiceError(w, "PreviewChannelHandler", err)
		return
	}
	writeData(w, preview)
}

// ApplyChannelHandler pushes the generated config to the gateway. Conflicting targets block the
// push with 409 unless force=true.
// @Summary Apply a channel's generated config
// @Tags Channels
// @Param channelID path int true "Channel id"
// @Param force query bool false "Push even when targets collide"
// @Success 200 {object} models.APIResponse{data=models.ChannelPreview}
// @Failure 409 {object} models.APIResponse{data=models.ChannelPreview}
// @Router /channels/{channelID}/apply [post]
func (a *API) ApplyChannelHandler(w http.ResponseWriter, r *http.Request) {
	id, err := channelIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	preview, err := a.Channels.Apply(r.Context(), id, force)
	if errors.Is(err, core.ErrDuplicateTargets) {
		logger.Info("ApplyChannelHandler: %v", err)
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": err.Error(),
			"data":    preview,
		})
		return
	}
	if err != nil {
		writeServiceError(w, "ApplyChannelHandler", err)
		return
	}
	writeData(w, preview)
}

// ImportFromChannelsHandler derives rules from the channels' current models and rename maps.
// @Summary Import rules from channels
// @Tags Channels
// @Success 200 {object} models.APIResponse{data=models.ImportFromChannelsResult}
// @Router /channels/import-rules [post]
func (a *API) ImportFromChannelsHandler(w http.ResponseWriter, r *http.Request) {
	result, err := a.Channels.ImportFromChannels(r.Context())
	if err != nil {
		writeServiceError(w, "ImportFromChannelsHandler", err)
		return
	}
	writeData(w, result)
}
