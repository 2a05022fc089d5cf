// SPDX-License-Identifier: MIT

// Package api exposes the chunked upload protocol over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/stationcast/stationcast/internal/config"
	"github.com/stationcast/stationcast/internal/metrics"
	"github.com/stationcast/stationcast/internal/upload"
)

// Server holds the HTTP surface of the upload subsystem.
type Server struct {
	cfg     config.Config
	manager *upload.Manager
}

// NewServer builds the API server around an upload manager.
func NewServer(cfg config.Config, manager *upload.Manager) *Server {
	return &Server{cfg: cfg, manager: manager}
}

// Router assembles the chi router with middleware and routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.cfg.UploadRateLimit > 0 {
			r.Use(httprate.Limit(
				s.cfg.UploadRateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					metrics.RateLimitExceeded("ip")
					writeJSON(w, http.StatusTooManyRequests,
						errorResponse{Success: false, Error: "too many requests"})
				}),
			))
		}
		r.Post("/api/upload", s.handleUpload)
	})

	return r
}
