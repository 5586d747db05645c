package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"plantguard.io/leaf-doctor/internal/metrics"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)

			r.Post("/diagnoses", apiHandler.DiagnoseHandler)
			r.Get("/diagnoses", apiHandler.ListDiagnosesHandler)
			r.Get("/diagnoses/last", apiHandler.LastDiagnosisHandler)
			r.Get("/stats", apiHandler.StatsHandler)

			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/chat", apiHandler.ChatHistoryHandler)
			r.Post("/chat/reset", apiHandler.ResetChatHandler)
		})
	})

	return r
}
