package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"modelmap/api/router/handlers"
	"modelmap/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the API router. All registered paths are relative to the /api base path.
// When accessToken is non-empty every route except /health and /version requires "Authorization: Bearer <token>".
func NewRouter(a *handlers.API, accessToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	a.RegisterHealthRoutes(r)
	handlers.RegisterVersionRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(accessToken))
		a.RegisterRuleRoutes(r)
		a.RegisterCustomRuleRoutes(r)
		a.RegisterExclusionRoutes(r)
		a.RegisterSettingsRoutes(r)
		a.RegisterTransferRoutes(r)
		a.RegisterChannelRoutes(r)
		a.RegisterDataRoutes(r)
		a.RegisterSyncRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s -> %d (%s) [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		expected := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"message":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
