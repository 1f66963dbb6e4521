package handlers

import (
	"net/http"

	"modelmap/logger"
	"modelmap/models"

	"github.com/go-chi/chi/v5"
)

// ListCustomRulesHandler returns every custom replace rule in insertion order.
// @Summary List custom replace rules
// @Tags CustomRules
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.CustomReplaceRule}
// @Router /custom-rules [get]
func (a *API) ListCustomRulesHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, a.Store.CustomRules())
}

// AddCustomRuleHandler creates an enabled custom rule ranked after all existing ones.
// @Summary Add a custom replace rule
// @Tags CustomRules
// @Accept json
// @Produce json
// @Param body body object true "{\"search\": \"-Preview\", \"replace\": \"\"}"
// @Success 201 {object} models.APIResponse{data=models.CustomReplaceRule}
// @Failure 400 {object} models.ErrorResponse
// @Router /custom-rules [post]
func (a *API) AddCustomRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Search  string `json:"search"`
		Replace string `json:"replace"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Error("AddCustomRuleHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Search == "" {
		writeError(w, http.StatusBadRequest, "search is required")
		return
	}
	rule := a.Store.AddCustomRule(req.Search, req.Replace)
	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true, Data: rule})
}

// UpdateCustomRuleHandler applies a partial update. The id cannot be changed.
// @Summary Update a custom replace rule
// @Tags CustomRules
// @Accept json
// @Produce json
// @Param id path string true "Rule id"
// @Param body body models.CustomRuleUpdate true "Fields to change"
// @Success 200 {object} models.APIResponse{data=models.CustomReplaceRule}
// @Failure 404 {object} models.ErrorResponse
// @Router /custom-rules/{id} [patch]
func (a *API) UpdateCustomRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var upd models.CustomRuleUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		logger.Error("UpdateCustomRuleHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.Store.UpdateCustomRule(id, upd) {
		writeError(w, http.StatusNotFound, "custom rule not found")
		return
	}
	for _, rule := range a.Store.CustomRules() {
		if rule.ID == id {
			writeData(w, rule)
			return
		}
	}
	writeError(w, http.StatusNotFound, "custom rule not found")
}

// DeleteCustomRuleHandler removes a custom rule. Unknown ids are not an error.
// @Summary Delete a custom replace rule
// @Tags CustomRules
// @Param id path string true "Rule id"
// @Success 200 {object} models.APIResponse
// @Router /custom-rules/{id} [delete]
func (a *API) DeleteCustomRuleHandler(w http.ResponseWriter, r *http.Request) {
	a.Store.RemoveCustomRule(chi.URLParam(r, "id"))
	writeMessage(w, http.StatusOK, "custom rule removed")
}
