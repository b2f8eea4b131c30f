// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/middleware"
)

// NewRouter wires the full route table. Health endpoints get a permissive
// rate limit so monitoring can poll them; everything else shares the
// configured per-IP limit.
func NewRouter(handler *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, cfg.RateLimitWindow))
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Route("/api/v1/recommendations", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(middleware.Prometheus)

		r.Get("/categories", handler.Categories)

		r.Route("/user/{userID}", func(r chi.Router) {
			r.Get("/", handler.Recommendations)
			r.Get("/similar/{workID}", handler.Similar)
			r.Get("/category/{slug}", handler.Category)
			r.Post("/profile/rebuild", handler.RebuildProfile)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
