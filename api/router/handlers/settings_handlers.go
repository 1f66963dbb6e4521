package handlers

import (
	"net/http"

	"modelmap/core"
	"modelmap/database"
	"modelmap/logger"
	"modelmap/models"
)

// GetProcessConfigHandler returns the transform pipeline settings.
// @Summary Get process config
// @Tags Settings
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.ProcessRuleConfig}
// @Router /settings/process-config [get]
func (a *API) GetProcessConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, a.Store.ProcessConfig())
}

// SetProcessConfigHandler replaces the transform pipeline settings. Omitted booleans keep their
// current value.
// @Summary Update process config
// @Tags Settings
// @Accept json
// @Produce json
// @Param config body models.ProcessRuleConfig true "Pipeline settings"
// @Success 200 {object} models.APIResponse{data=models.ProcessRuleConfig}
// @Router /settings/process-config [put]
func (a *API) SetProcessConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg := a.Store.ProcessConfig()
	if err := decodeJSON(w, r, &cfg); err != nil {
		logger.Error("SetProcessConfigHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.Store.SetProcessConfig(cfg)
	writeData(w, cfg)
}

// GetSyncModeHandler returns the import merge policy.
// @Summary Get sync mode
// @Tags Settings
// @Success 200 {object} models.APIResponse
// @Router /settings/sync-mode [get]
func (a *API) GetSyncModeHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]models.SyncMode{"syncMode": a.Store.SyncMode()})
}

// SetSyncModeHandler changes the import merge policy.
// @Summary Set sync mode
// @Tags Settings
// @Accept json
// @Param body body object true "{\"syncMode\": \"append\"}"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /settings/sync-mode [put]
func (a *API) SetSyncModeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SyncMode models.SyncMode `json:"syncMode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.Store.SetSyncMode(req.SyncMode) {
		writeError(w, http.StatusBadRequest, "syncMode must be \"append\" or \"overwrite\"")
		return
	}
	writeData(w, map[string]models.SyncMode{"syncMode": req.SyncMode})
}

// GetUpstreamSettingsHandler returns the stored upstream gateway settings with the token masked.
// @Summary Get upstream settings
// @Tags Settings
// @Success 200 {object} models.APIResponse{data=models.UpstreamConfig}
// @Router /settings/upstream [get]
func (a *API) GetUpstreamSettingsHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok, err := database.GetUpstreamConfig()
	if err != nil {
		logger.Error("GetUpstreamSettingsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read upstream settings")
		return
	}
	if !ok {
		writeData(w, nil)
		return
	}
	if cfg.Token != "" {
		cfg.Token = maskToken(cfg.Token)
	}
	writeData(w, cfg)
}

// SetUpstreamSettingsHandler validates and stores the upstream gateway settings.
// @Summary Save upstream settings
// @Tags Settings
// @Accept json
// @Param config body models.UpstreamConfig true "Gateway connection"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /settings/upstream [put]
func (a *API) SetUpstreamSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpstreamConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolved, err := core.ResolveUpstreamConfig(req)
	if err != nil {
		writeServiceError(w, "SetUpstreamSettingsHandler", err)
		return
	}
	if err := database.SetUpstreamConfig(resolved); err != nil {
		logger.Error("SetUpstreamSettingsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save upstream settings")
		return
	}
	logger.Info("SetUpstreamSettingsHandler: upstream set to %s (user %s)", resolved.BaseURL, resolved.UserID)
	writeMessage(w, http.StatusOK, "upstream settings saved")
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
