package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterSettingsRoutes(r chi.Router) {
	r.Route("/settings/process-config", func(r chi.Router) {
		r.Get("/", a.GetProcessConfigHandler)
		r.Put("/", a.SetProcessConfigHandler)
	})

	r.Route("/settings/sync-mode", func(r chi.Router) {
		r.Get("/", a.GetSyncModeHandler)
		r.Put("/", a.SetSyncModeHandler)
	})

	r.Route("/settings/upstream", func(r chi.Router) {
		r.Get("/", a.GetUpstreamSettingsHandler)
		r.Put("/", a.SetUpstreamSettingsHandler)
		r.Post("/", a.SetUpstreamSettingsHandler)
	})
}
