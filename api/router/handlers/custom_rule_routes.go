package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (a *API) RegisterCustomRuleRoutes(r chi.Router) {
	r.Route("/custom-rules", func(r chi.Router) {
		r.Get("/", a.ListCustomRulesHandler)
		r.Post("/", a.AddCustomRuleHandler)
		r.Patch("/{id}", a.UpdateCustomRuleHandler)
		r.Delete("/{id}", a.DeleteCustomRuleHandler)
	})
}
