package handlers

import (
	"fmt"
	"io"
	"net/http"

	"modelmap/core"
	"modelmap/logger"
	"modelmap/models"

	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterTransferRoutes(r chi.Router) {
	r.Get("/transfer/export", a.ExportRulesHandler)
	r.Post("/transfer/import", a.ImportRulesHandler)
}

// ExportRulesHandler downloads the rule set as a versioned JSON document.
// @Summary Export rules
// @Tags Transfer
// @Produce json
// @Success 200 {object} models.ExportDocument
// @Router /transfer/export [get]
func (a *API) ExportRulesHandler(w http.ResponseWriter, r *http.Request) {
	data, err := a.Store.ExportRules()
	if err != nil {
		logger.Error("ExportRulesHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to export rules")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", core.ExportFileName(a.now())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("ExportRulesHandler: error writing response: %v", err)
	}
}

// ImportRulesHandler loads an export document. The mode query parameter defaults to the
// configured sync mode.
// @Summary Import rules
// @Tags Transfer
// @Accept json
// @Produce json
// @Param mode query string false "append or overwrite"
// @Param document body models.ExportDocument true "Export document"
// @Success 200 {object} models.APIResponse{data=models.ImportRulesResult}
// @Failure 400 {object} models.ErrorResponse
// @Router /transfer/import [post]
func (a *API) ImportRulesHandler(w http.ResponseWriter, r *http.Request) {
	mode := a.Store.SyncMode()
	if q := r.URL.Query().Get("mode"); q != "" {
		mode = models.SyncMode(q)
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	result, err := a.Store.ImportRules(body, mode)
	if err != nil {
		writeServiceError(w, "ImportRulesHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: result.Message, Data: result})
}
