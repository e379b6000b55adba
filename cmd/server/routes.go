package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.logRequest)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: app.Config.FrontendOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         7200,
	}).Handler)

	r.Get("/health", app.handleHealth)
	r.Get("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Get("/move", app.handleMoveGreeting)
		api.Post("/move", app.handleMoveSubmit)
	})

	r.Get("/ws", app.handleWebSocket)

	return r
}
