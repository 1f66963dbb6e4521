package handlers

import (
	"context"
	"net/http"

	"modelmap/database"
	"modelmap/logger"
	"modelmap/models"

	"github.com/go-chi/chi/v5"
)

// The /data endpoints read and replace the persisted tables directly. Writes flush pending store
// edits first and reload the store afterwards so the two never diverge.

func (a *API) RegisterDataRoutes(r chi.Router) {
	r.Route("/data", func(r chi.Router) {
		r.Get("/mapping-rules", a.GetMappingRulesDataHandler)
		r.Put("/mapping-rules", a.PutMappingRulesDataHandler)
		r.Get("/custom-rules", a.GetCustomRulesDataHandler)
		r.Put("/custom-rules", a.PutCustomRulesDataHandler)
		r.Get("/config", a.GetConfigDataHandler)
		r.Put("/config", a.PutConfigDataHandler)
		r.Get("/channel-exclusions", a.GetExclusionsDataHandler)
		r.Put("/channel-exclusions", a.PutExclusionsDataHandler)
	})
}

// writeThrough flushes the store, runs write and reloads the store from the database.
func (a *API) writeThrough(ctx context.Context, handler string, write func() error) error {
	if a.Sync != nil && a.Sync.Loaded() {
		if err := a.Sync.Flush(ctx); err != nil {
			logger.Error("%s: flushing pending changes: %v", handler, err)
			return err
		}
	}
	if err := write(); err != nil {
		logger.Error("%s: %v", handler, err)
		return err
	}
	if err := a.reload(ctx); err != nil {
		logger.Error("%s: reloading store: %v", handler, err)
		return err
	}
	return nil
}

// GetMappingRulesDataHandler returns the persisted mapping rules.
// @Summary Get stored mapping rules
// @Tags Data
// @Success 200 {object} models.APIResponse{data=[]models.MappingRule}
// @Router /data/mapping-rules [get]
func (a *API) GetMappingRulesDataHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := database.GetMappingRules()
	if err != nil {
		logger.Error("GetMappingRulesDataHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get mapping rules: "+err.Error())
		return
	}
	writeData(w, rules)
}

// PutMappingRulesDataHandler replaces the persisted mapping rules. Incomplete rules are dropped.
// @Summary Replace stored mapping rules
// @Tags Data
// @Accept json
// @Param body body object true "{\"rules\": [{\"sourceModel\": \"a\", \"targetModel\": \"b\"}]}"
// @Success 200 {object} models.APIResponse
// @Router /data/mapping-rules [put]
func (a *API) PutMappingRulesDataHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules []models.MappingRule `json:"rules"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rules == nil {
		writeError(w, http.StatusBadRequest, "rules must be an array")
		return
	}
	err := a.writeThrough(r.Context(), "PutMappingRulesDataHandler", func() error {
		return database.ReplaceMappingRules(req.Rules)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update mapping rules: "+err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "mapping rules updated")
}

// GetCustomRulesDataHandler returns the persisted custom replace rules.
// @Summary Get stored custom rules
// @Tags Data
// @Success 200 {object} models.APIResponse{data=[]models.CustomReplaceRule}
// @Router /data/custom-rules [get]
func (a *API) GetCustomRulesDataHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := database.GetCustomRules()
	if err != nil {
		logger.Error("GetCustomRulesDataHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get custom rules: "+err.Error())
		return
	}
	writeData(w, rules)
}

// PutCustomRulesDataHandler replaces the persisted custom rules. Rules without an id are dropped.
// @Summary Replace stored custom rules
// @Tags Data
// @Accept json
// @Param body body object true "{\"rules\": [...]}"
// @Success 200 {object} models.APIResponse
// @Router /data/custom-rules [put]
func (a *API) PutCustomRulesDataHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules []models.CustomReplaceRule `json:"rules"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rules == nil {
		writeError(w, http.StatusBadRequest, "rules must be an array")
		return
	}
	err := a.writeThrough(r.Context(), "PutCustomRulesDataHandler", func() error {
		return database.ReplaceCustomRules(req.Rules)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update custom rules: "+err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "custom rules updated")
}

// GetConfigDataHandler returns every stored setting except the upstream connection.
// @Summary Get stored settings
// @Tags Data
// @Success 200 {object} models.APIResponse
// @Router /data/config [get]
func (a *API) GetConfigDataHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetAllSettings()
	if err != nil {
		logger.Error("GetConfigDataHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get config: "+err.Error())
		return
	}
	delete(settings, models.UpstreamConfigKey)
	writeData(w, settings)
}

// PutConfigDataHandler upserts settings, each stored JSON-encoded. The upstream connection must
// go through /settings/upstream.
// @Summary Update stored settings
// @Tags Data
// @Accept json
// @Param body body object true "{\"config\": {\"syncMode\": \"append\"}}"
// @Success 200 {object} models.APIResponse
// @Router /data/config [put]
func (a *API) PutConfigDataHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config map[string]interface{} `json:"config"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, "config must be an object")
		return
	}
	if _, ok := req.Config[models.UpstreamConfigKey]; ok {
		writeError(w, http.StatusBadRequest, "use /settings/upstream to change the upstream connection")
		return
	}
	if raw, ok := req.Config[models.SyncModeKey]; ok {
		if s, isString := raw.(string); !isString || !models.SyncMode(s).Valid() {
			writeError(w, http.StatusBadRequest, "syncMode must be \"append\" or \"overwrite\"")
			return
		}
	}
	err := a.writeThrough(r.Context(), "PutConfigDataHandler", func() error {
		return database.SetSettingsJSON(req.Config)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update config: "+err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "config updated")
}

// GetExclusionsDataHandler returns the persisted channel exclusions.
// @Summary Get stored channel exclusions
// @Tags Data
// @Success 200 {object} models.APIResponse{data=[]models.ChannelExclusion}
// @Router /data/channel-exclusions [get]
func (a *API) GetExclusionsDataHandler(w http.ResponseWriter, r *http.Request) {
	exclusions, err := database.GetChannelExclusions()
	if err != nil {
		logger.Error("GetExclusionsDataHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get channel exclusions: "+err.Error())
		return
	}
	writeData(w, exclusions)
}

// PutExclusionsDataHandler replaces the persisted channel exclusions.
// @Summary Replace stored channel exclusions
// @Tags Data
// @Accept json
// @Param body body object true "{\"exclusions\": [{\"channelId\": 1, \"excludedModels\": []}]}"
// @Success 200 {object} models.APIResponse
// @Router /data/channel-exclusions [put]
func (a *API) PutExclusionsDataHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Exclusions []models.ChannelExclusion `json:"exclusions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Exclusions == nil {
		writeError(w, http.StatusBadRequest, "exclusions must be an array")
		return
	}
	err := a.writeThrough(r.Context(), "PutExclusionsDataHandler", func() error {
		return database.ReplaceChannelExclusions(req.Exclusions)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update channel exclusions: "+err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "channel exclusions updated")
}
