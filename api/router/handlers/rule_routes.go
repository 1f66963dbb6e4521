package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterRuleRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", a.ListRulesHandler)
		r.Post("/", a.AddRuleHandler)
		r.Delete("/", a.ClearRulesHandler)
		r.Post("/auto-process", a.AutoProcessRulesHandler)
		r.Post("/process-preview", a.PreviewProcessHandler)
		r.Put("/*", a.UpdateRuleHandler)
		r.Delete("/*", a.DeleteRuleHandler)
	})
}
