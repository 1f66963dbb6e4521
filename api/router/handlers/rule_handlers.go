package handlers

import (
	"net/http"
	"strings"

	"modelmap/core"
	"modelmap/logger"
	"modelmap/models"
)

// ListRulesHandler returns every mapping rule in insertion order.
// @Summary List mapping rules
// @Tags Rules
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.MappingRule}
// @Router /rules [get]
func (a *API) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, a.Store.Rules())
}

// AddRuleHandler adds a mapping rule. The first rule for a source model wins.
// @Summary Add a mapping rule
// @Description targetModel defaults to sourceModel when empty. Returns 409 if a rule for sourceModel already exists.
// @Tags Rules
// @Accept json
// @Produce json
// @Param rule body models.MappingRule true "Rule to add"
// @Success 201 {object} models.APIResponse{data=models.MappingRule}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /rules [post]
func (a *API) AddRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MappingRule
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Error("AddRuleHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SourceModel) == "" {
		writeError(w, http.StatusBadRequest, "sourceModel is required")
		return
	}
	if !a.Store.AddRule(req.SourceModel, req.TargetModel) {
		writeError(w, http.StatusConflict, "a rule for this source model already exists")
		return
	}
	target, _ := a.Store.GetTargetModel(req.SourceModel)
	writeJSON(w, http.StatusCreated, models.APIResponse{
		Success: true,
		Data:    models.MappingRule{SourceModel: req.SourceModel, TargetModel: target},
	})
}

// UpdateRuleHandler changes the target model of an existing rule.
// @Summary Update a rule's target model
// @Tags Rules
// @Accept json
// @Produce json
// @Param source path string true "Source model (may contain slashes)"
// @Param body body object true "{\"targetModel\": \"gpt-4\"}"
// @Success 200 {object} models.APIResponse{data=models.MappingRule}
// @Failure 404 {object} models.ErrorResponse
// @Router /rules/{source} [put]
func (a *API) UpdateRuleHandler(w http.ResponseWriter, r *http.Request) {
	source, err := wildcardParam(r)
	if err != nil || source == "" {
		writeError(w, http.StatusBadRequest, "source model is required")
		return
	}
	var req struct {
		TargetModel string `json:"targetModel"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Error("UpdateRuleHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TargetModel) == "" {
		writeError(w, http.StatusBadRequest, "targetModel is required")
		return
	}
	if !a.Store.HasRule(source) {
		writeError(w, http.StatusNotFound, "no rule for source model "+source)
		return
	}
	a.Store.UpdateTargetModel(source, req.TargetModel)
	writeData(w, models.MappingRule{SourceModel: source, TargetModel: req.TargetModel})
}

// DeleteRuleHandler removes the rule for one source model. Unknown sources are not an error.
// @Summary Delete a mapping rule
// @Tags Rules
// @Param source path string true "Source model (may contain slashes)"
// @Success 200 {object} models.APIResponse
// @Router /rules/{source} [delete]
func (a *API) DeleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	source, err := wildcardParam(r)
	if err != nil || source == "" {
		writeError(w, http.StatusBadRequest, "source model is required")
		return
	}
	a.Store.RemoveRule(source)
	writeMessage(w, http.StatusOK, "rule removed")
}

// ClearRulesHandler removes every mapping rule. Custom rules and exclusions are kept.
// @Summary Delete all mapping rules
// @Tags Rules
// @Success 200 {object} models.APIResponse
// @Router /rules [delete]
func (a *API) ClearRulesHandler(w http.ResponseWriter, r *http.Request) {
	a.Store.ClearRules()
	writeMessage(w, http.StatusOK, "all rules removed")
}

// AutoProcessRulesHandler runs every rule's target model through the transform pipeline.
// @Summary Auto-process rule targets
// @Tags Rules
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.MappingRule}
// @Router /rules/auto-process [post]
func (a *API) AutoProcessRulesHandler(w http.ResponseWriter, r *http.Request) {
	a.Store.AutoProcessRules()
	writeData(w, a.Store.Rules())
}

// PreviewProcessHandler shows what the transform pipeline makes of a name without changing
// anything.
// @Summary Preview the transform pipeline
// @Tags Rules
// @Accept json
// @Produce json
// @Param body body object true "{\"name\": \" GPT-4-Preview \"}"
// @Success 200 {object} models.APIResponse
// @Router /rules/process-preview [post]
func (a *API) PreviewProcessHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result := core.ApplyProcessRules(req.Name, a.Store.ProcessConfig(), a.Store.CustomRules())
	writeData(w, map[string]string{"name": req.Name, "result": result})
}
